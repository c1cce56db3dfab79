package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"clawderous/internal/config"
	"clawderous/internal/domain"
	"clawderous/internal/redisstore"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeStore struct {
	deleted      []string
	senders      []string
	journalOwner string
	journalLimit int
}

func (s *fakeStore) Ping(context.Context) error { return nil }

func (s *fakeStore) GetStats(context.Context, time.Time) (*redisstore.Stats, error) {
	return &redisstore.Stats{TotalArtifacts: 3, Last24h: 1, Owners: 2, ByCommand: map[string]int64{"memo": 3}}, nil
}

func (s *fakeStore) ListArtifacts(_ context.Context, offset, limit int) ([]*domain.Artifact, error) {
	return []*domain.Artifact{{ID: "a1", Command: "memo"}}, nil
}

func (s *fakeStore) DeleteArtifact(_ context.Context, id string) error {
	if id == "missing" {
		return redisstore.ErrNotFound
	}
	s.deleted = append(s.deleted, id)
	return nil
}

func (s *fakeStore) AllowedSenders(_ context.Context, static []string) ([]string, error) {
	if len(s.senders) == 0 {
		return static, nil
	}
	return s.senders, nil
}

func (s *fakeStore) AddSender(_ context.Context, e string) error {
	s.senders = append(s.senders, e)
	return nil
}

func (s *fakeStore) RemoveSender(context.Context, string) error { return nil }

func (s *fakeStore) Journal(_ context.Context, owner string, limit int) ([]string, error) {
	s.journalOwner, s.journalLimit = owner, limit
	return []string{"[2026-01-01T00:00:00Z] standup: shipped"}, nil
}

func (s *fakeStore) Reminders(context.Context, string) ([]*domain.Reminder, error) {
	return []*domain.Reminder{{ID: "r1", Message: "dentist"}}, nil
}

func newAdmin(t *testing.T) (*httptest.Server, *fakeStore) {
	t.Helper()
	cfg := config.Defaults()
	cfg.AdminPassword = "hunter2"
	cfg.JWTSecret = "test-secret"
	cfg.AllowedSenders = []string{"@example.com"}

	store := &fakeStore{}
	h, err := NewAdminHandler(cfg, store, zap.NewNop())
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Route("/admin", h.Routes)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, store
}

func login(t *testing.T, url, password string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Post(url+"/admin/login", "application/json", strings.NewReader(`{"password":"`+password+`"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]string
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out["token"]
}

func authed(t *testing.T, method, url, token, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestLoginAndStats(t *testing.T) {
	srv, _ := newAdmin(t)

	resp, _ := login(t, srv.URL, "wrong")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, token := login(t, srv.URL, "hunter2")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, token)

	assert.Equal(t, http.StatusUnauthorized, authed(t, http.MethodGet, srv.URL+"/admin/stats", "", "").StatusCode)
	assert.Equal(t, http.StatusUnauthorized, authed(t, http.MethodGet, srv.URL+"/admin/stats", "garbage", "").StatusCode)

	resp = authed(t, http.MethodGet, srv.URL+"/admin/stats", token, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var st map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	assert.Equal(t, float64(3), st["totalArtifacts"])
	assert.Equal(t, float64(1), st["artifactsLast24h"])
}

func TestArtifactsAndSenders(t *testing.T) {
	srv, store := newAdmin(t)
	_, token := login(t, srv.URL, "hunter2")

	resp := authed(t, http.MethodGet, srv.URL+"/admin/artifacts?offset=5&limit=9999", token, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var page map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&page))
	assert.Equal(t, float64(5), page["offset"])
	assert.Equal(t, float64(50), page["limit"])

	assert.Equal(t, http.StatusOK, authed(t, http.MethodDelete, srv.URL+"/admin/artifacts/a1", token, "").StatusCode)
	assert.Equal(t, http.StatusNotFound, authed(t, http.MethodDelete, srv.URL+"/admin/artifacts/missing", token, "").StatusCode)
	assert.Equal(t, []string{"a1"}, store.deleted)

	resp = authed(t, http.MethodGet, srv.URL+"/admin/senders", token, "")
	var senders struct{ Senders []string }
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&senders))
	assert.Equal(t, []string{"@example.com"}, senders.Senders)

	assert.Equal(t, http.StatusBadRequest, authed(t, http.MethodPost, srv.URL+"/admin/senders", token, `{"entry":"nope"}`).StatusCode)
	assert.Equal(t, http.StatusOK, authed(t, http.MethodPost, srv.URL+"/admin/senders", token, `{"entry":"bob@other.org"}`).StatusCode)
	assert.Equal(t, []string{"bob@other.org"}, store.senders)
}

func TestValidateTokenRejectsOtherSigners(t *testing.T) {
	a, err := NewAuthService("pw", "secret-a")
	require.NoError(t, err)
	b, err := NewAuthService("pw", "secret-b")
	require.NoError(t, err)

	tok, err := b.GenerateToken()
	require.NoError(t, err)
	_, err = a.ValidateToken(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{Admin: true})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = a.ValidateToken(unsigned)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = NewAuthService("", "x")
	assert.ErrorIs(t, err, ErrNoPassword)
}

func TestJournal(t *testing.T) {
	srv, store := newAdmin(t)
	_, token := login(t, srv.URL, "hunter2")

	resp := authed(t, http.MethodGet, srv.URL+"/admin/journal/Ada@Example.com?limit=5", token, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out struct {
		Owner     string
		Entries   []string
		Reminders []domain.Reminder
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "ada@example.com", out.Owner)
	assert.Len(t, out.Entries, 1)
	require.Len(t, out.Reminders, 1)
	assert.Equal(t, "dentist", out.Reminders[0].Message)
	assert.Equal(t, "ada@example.com", store.journalOwner)
	assert.Equal(t, 5, store.journalLimit)

	resp = authed(t, http.MethodGet, srv.URL+"/admin/journal/ada@example.com", "", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
