package provider

import (
	"errors"
	"testing"

	"clawderous/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(newTestResend("")))
	require.NoError(t, reg.Register(newTestSendGrid("", "")))
	assert.Error(t, reg.Register(newTestResend("")), "duplicate names are rejected")

	p, ok := reg.Lookup("sendgrid")
	require.True(t, ok)
	assert.Equal(t, SendGridName, p.Name())

	_, ok = reg.Lookup("postmark")
	assert.False(t, ok)
	_, err := reg.Resolve("postmark")
	assert.True(t, errors.Is(err, ErrNotFound))

	assert.Equal(t, []string{"resend", "sendgrid"}, reg.Names())

	reg.Freeze()
	assert.Error(t, reg.Register(NewResend(ResendConfig{})))
}

func TestEveryAdapterRejectsEmptySignature(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(newTestResend("")))
	require.NoError(t, reg.Register(newTestSendGrid("", "")))

	for _, name := range reg.Names() {
		p, _ := reg.Lookup(name)
		assert.False(t, p.VerifyWebhookSignature([]byte(`{"any":"payload"}`), ""), name)
		assert.False(t, p.VerifyWebhookSignature(nil, ""), name)
	}
}

func TestFromConfig(t *testing.T) {
	cfg := config.Defaults()
	cfg.EmailProvider = "sendgrid"
	reg, active, err := FromConfig(cfg, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, SendGridName, active.Name())
	assert.Error(t, reg.Register(NewResend(ResendConfig{})), "registry is frozen after startup")

	cfg.EmailProvider = "mailgun"
	_, _, err = FromConfig(cfg, zap.NewNop())
	assert.True(t, errors.Is(err, ErrNotFound))
}
