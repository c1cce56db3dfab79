package admin

import (
	"crypto/rand"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const tokenIssuer = "clawderous-admin"

var (
	ErrNoPassword      = errors.New("admin password not configured")
	ErrInvalidPassword = errors.New("invalid password")
	ErrInvalidToken    = errors.New("invalid token")
)

type AuthService struct {
	adminPasswordHash []byte
	jwtSecret         []byte
	tokenTTL          time.Duration
}

type Claims struct {
	Admin bool `json:"admin"`
	jwt.RegisteredClaims
}

// NewAuthService hashes adminPassword. An empty jwtSecret gets a random
// one, so tokens do not survive a restart.
func NewAuthService(adminPassword, jwtSecret string) (*AuthService, error) {
	if adminPassword == "" {
		return nil, ErrNoPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(adminPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	secret := []byte(jwtSecret)
	if jwtSecret == "" {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, err
		}
	}

	return &AuthService{
		adminPasswordHash: hash,
		jwtSecret:         secret,
		tokenTTL:          24 * time.Hour,
	}, nil
}

func (a *AuthService) ValidatePassword(password string) error {
	if err := bcrypt.CompareHashAndPassword(a.adminPasswordHash, []byte(password)); err != nil {
		return ErrInvalidPassword
	}
	return nil
}

func (a *AuthService) GenerateToken() (string, error) {
	now := time.Now()
	claims := &Claims{
		Admin: true,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(a.tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.jwtSecret)
}

func (a *AuthService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(*jwt.Token) (any, error) {
		return a.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(tokenIssuer))
	if err != nil {
		return nil, ErrInvalidToken
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid && claims.Admin {
		return claims, nil
	}
	return nil, ErrInvalidToken
}
