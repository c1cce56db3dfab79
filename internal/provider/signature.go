package provider

import (
	"crypto/ecdsa"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"
)

// SignHMAC computes the v1 value of a timestamped HMAC signature header:
// hex(HMAC-SHA256(secret, "<unix>.<payload>")).
func SignHMAC(secret string, ts int64, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(ts, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// verifyTimestampedHMAC checks a "t=<unix>,v1=<hex>[,v1=<hex>...]" header.
func verifyTimestampedHMAC(secret string, payload []byte, header string, now time.Time, tolerance time.Duration) bool {
	if secret == "" || header == "" {
		return false
	}

	var ts int64 = -1
	var candidates []string
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return false
			}
			ts = n
		case "v1":
			candidates = append(candidates, v)
		}
	}
	if ts < 0 || len(candidates) == 0 || !withinTolerance(ts, now, tolerance) {
		return false
	}

	expected := []byte(SignHMAC(secret, ts, payload))
	for _, c := range candidates {
		if hmac.Equal(expected, []byte(c)) {
			return true
		}
	}
	return false
}

// ParseECDSAPublicKey decodes a base64 DER (PKIX) ECDSA public key.
func ParseECDSAPublicKey(b64 string) (*ecdsa.PublicKey, error) {
	der, err := base64.StdEncoding.DecodeString(strings.TrimSpace(b64))
	if err != nil {
		return nil, err
	}
	key, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, err
	}
	pub, ok := key.(*ecdsa.PublicKey)
	if !ok {
		return nil, errors.New("public key is not ECDSA")
	}
	return pub, nil
}

// verifyECDSA checks a "<unix>.<base64 ASN.1 signature>" value signed over
// timestamp+payload.
func verifyECDSA(pub *ecdsa.PublicKey, payload []byte, value string, now time.Time, tolerance time.Duration) bool {
	if pub == nil || value == "" {
		return false
	}
	tsStr, sigB64, ok := strings.Cut(value, ".")
	if !ok || tsStr == "" || sigB64 == "" {
		return false
	}
	ts, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil || !withinTolerance(ts, now, tolerance) {
		return false
	}
	sig, err := base64.StdEncoding.DecodeString(sigB64)
	if err != nil {
		return false
	}

	h := sha256.New()
	h.Write([]byte(tsStr))
	h.Write(payload)
	return ecdsa.VerifyASN1(pub, h.Sum(nil), sig)
}

func withinTolerance(ts int64, now time.Time, tolerance time.Duration) bool {
	if tolerance <= 0 {
		return true
	}
	d := now.Sub(time.Unix(ts, 0))
	if d < 0 {
		d = -d
	}
	return d <= tolerance
}
