package provider

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"clawderous/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

const resendSample = `{
	"from": "alice@example.com",
	"to": "bot@clawderous.dev",
	"subject": "/memo Groceries",
	"text": "milk and eggs",
	"html": "<p>milk and eggs</p>",
	"headers": {"Message-ID": "<m1@example.com>", "X-Mailer": "Mutt"}
}`

func newTestResend(baseURL string) *Resend {
	return NewResend(ResendConfig{
		APIKey:        "re_test",
		WebhookSecret: "whsec_test",
		From:          "Clawderous <bot@clawderous.dev>",
		BaseURL:       baseURL,
		Tolerance:     5 * time.Minute,
		Now:           func() time.Time { return fixedNow },
	})
}

func TestResendInbound(t *testing.T) {
	r := newTestResend("")
	email, err := r.HandleInboundWebhook(context.Background(), []byte(resendSample), "application/json")
	require.NoError(t, err)

	assert.Equal(t, "<m1@example.com>", email.ID)
	assert.Equal(t, "alice@example.com", email.From)
	assert.Equal(t, "bot@clawderous.dev", email.To)
	assert.Equal(t, "/memo Groceries", email.Subject)
	assert.Equal(t, "milk and eggs", email.Text)
	assert.Equal(t, "Mutt", email.Headers["x-mailer"])
	assert.Equal(t, fixedNow, email.ReceivedAt)
	assert.Nil(t, email.Envelope)
}

func TestResendInboundEventWrapperAndSynthesizedID(t *testing.T) {
	r := newTestResend("")
	body := `{"type":"email.received","data":{"from":"a@x.com","to":["bot@clawderous.dev"],"subject":"/help","text":""}}`
	email, err := r.HandleInboundWebhook(context.Background(), []byte(body), "application/json")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(email.ID, "resend-"))
	assert.Equal(t, "bot@clawderous.dev", email.To)
	assert.NotNil(t, email.Headers)
}

func TestResendInboundRejectsIncompletePayload(t *testing.T) {
	r := newTestResend("")
	for _, body := range []string{
		`not json`,
		`{"to":"bot@clawderous.dev","subject":"x"}`,
		`{"from":"a@x.com","subject":"x"}`,
		`{"from":"a@x.com","to":42}`,
	} {
		_, err := r.HandleInboundWebhook(context.Background(), []byte(body), "application/json")
		var pe *ParseError
		assert.True(t, errors.As(err, &pe), body)
	}
}

func TestResendSendEmail(t *testing.T) {
	var got resendSendBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/emails", r.URL.Path)
		assert.Equal(t, "Bearer re_test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"id":"re_123"}`))
	}))
	defer srv.Close()

	r := newTestResend(srv.URL)
	id, err := r.SendEmail(context.Background(), &domain.OutboundSendRequest{
		To:      "alice@example.com",
		Subject: "Re: /memo",
		Text:    "saved",
		CC:      []string{"c@example.com"},
	})
	require.NoError(t, err)
	assert.Equal(t, "re_123", id)
	assert.Equal(t, []string{"alice@example.com"}, got.To)
	assert.Equal(t, []string{"c@example.com"}, got.CC)
	assert.Equal(t, "Clawderous <bot@clawderous.dev>", got.From)
}

func TestResendSendEmailNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"message":"bad from"}`))
	}))
	defer srv.Close()

	_, err := newTestResend(srv.URL).SendEmail(context.Background(), &domain.OutboundSendRequest{To: "a@x.com"})
	var pe *ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, http.StatusUnprocessableEntity, pe.StatusCode)
	assert.Contains(t, pe.Error(), "bad from")
}

func TestResendSendEmailTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	_, err := newTestResend(srv.URL).SendEmail(context.Background(), &domain.OutboundSendRequest{To: "a@x.com"})
	var pe *ProviderError
	assert.True(t, errors.As(err, &pe))
}

func TestResendRoundTrip(t *testing.T) {
	var got resendSendBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		w.Write([]byte(`{"id":"re_rt"}`))
	}))
	defer srv.Close()

	r := newTestResend(srv.URL)
	in, err := r.HandleInboundWebhook(context.Background(), []byte(resendSample), "application/json")
	require.NoError(t, err)

	_, err = r.SendEmail(context.Background(), &domain.OutboundSendRequest{To: in.To, Subject: in.Subject, Text: in.Text})
	require.NoError(t, err)
	assert.Equal(t, []string{"bot@clawderous.dev"}, got.To)
	assert.Equal(t, "/memo Groceries", got.Subject)
	assert.Equal(t, "milk and eggs", got.Text)
}

func TestResendVerifyWebhookSignature(t *testing.T) {
	r := newTestResend("")
	payload := []byte(resendSample)
	ts := fixedNow.Unix()
	good := "t=" + strconv.FormatInt(ts, 10) + ",v1=" + SignHMAC("whsec_test", ts, payload)

	assert.True(t, r.VerifyWebhookSignature(payload, good))
	assert.False(t, r.VerifyWebhookSignature(payload, ""))
	assert.False(t, r.VerifyWebhookSignature([]byte("tampered"), good))
	assert.False(t, r.VerifyWebhookSignature(payload, "t="+strconv.FormatInt(ts, 10)+",v1=deadbeef"))
	assert.False(t, r.VerifyWebhookSignature(payload, "garbage"))

	stale := fixedNow.Add(-10 * time.Minute).Unix()
	staleSig := "t=" + strconv.FormatInt(stale, 10) + ",v1=" + SignHMAC("whsec_test", stale, payload)
	assert.False(t, r.VerifyWebhookSignature(payload, staleSig))

	rotated := "t=" + strconv.FormatInt(ts, 10) + ",v1=old,v1=" + SignHMAC("whsec_test", ts, payload)
	assert.True(t, r.VerifyWebhookSignature(payload, rotated))
}

func TestResendRejectsWithoutSecret(t *testing.T) {
	r := NewResend(ResendConfig{Now: func() time.Time { return fixedNow }})
	payload := []byte("x")
	sig := "t=" + strconv.FormatInt(fixedNow.Unix(), 10) + ",v1=" + SignHMAC("", fixedNow.Unix(), payload)
	assert.False(t, r.VerifyWebhookSignature(payload, sig))
}

func TestResendSignatureFromHeaders(t *testing.T) {
	h := http.Header{}
	h.Set("resend-signature", "t=1,v1=abc")
	assert.Equal(t, "t=1,v1=abc", newTestResend("").SignatureFromHeaders(h))
}

func TestResendValidateConfig(t *testing.T) {
	status := http.StatusUnprocessableEntity
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	defer srv.Close()

	ok, err := newTestResend(srv.URL).ValidateConfig(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)

	status = http.StatusUnauthorized
	ok, err = newTestResend(srv.URL).ValidateConfig(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = NewResend(ResendConfig{}).ValidateConfig(context.Background())
	assert.Error(t, err)
	assert.False(t, ok)
}
