package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"clawderous/internal/domain"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

const (
	ResendName            = "resend"
	ResendSignatureHeader = "Resend-Signature"
	resendDefaultBaseURL  = "https://api.resend.com"
)

type ResendConfig struct {
	APIKey        string
	WebhookSecret string
	From          string
	BaseURL       string
	Tolerance     time.Duration
	Client        *http.Client
	Logger        *zap.Logger
	Now           func() time.Time
}

// Resend delivers inbound mail as JSON and sends through POST /emails with
// flat recipient fields.
type Resend struct {
	cfg    ResendConfig
	client *http.Client
	logger *zap.Logger
	now    func() time.Time
}

func NewResend(cfg ResendConfig) *Resend {
	if cfg.BaseURL == "" {
		cfg.BaseURL = resendDefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	r := &Resend{cfg: cfg, client: cfg.Client, logger: cfg.Logger, now: cfg.Now}
	if r.client == nil {
		r.client = NewHTTPClient(0)
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r
}

func (r *Resend) Name() string { return ResendName }

// addressList accepts either "a@x" or ["a@x", "b@x"].
type addressList []string

func (a *addressList) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		if one != "" {
			*a = addressList{one}
		}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*a = many
	return nil
}

func (a addressList) first() string {
	for _, s := range a {
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}

type resendInbound struct {
	From        string            `json:"from"`
	To          addressList       `json:"to"`
	Subject     string            `json:"subject"`
	Text        string            `json:"text"`
	HTML        string            `json:"html"`
	Headers     map[string]string `json:"headers"`
	CreatedAt   string            `json:"created_at"`
	Attachments []json.RawMessage `json:"attachments"`
}

// resendEvent is the envelope newer webhook deliveries wrap the email in.
type resendEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func (r *Resend) HandleInboundWebhook(_ context.Context, body []byte, _ string) (*domain.InboundEmail, error) {
	var evt resendEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		return nil, &ParseError{Provider: ResendName, Reason: "invalid JSON", Err: err}
	}
	raw := body
	if len(evt.Data) > 0 && evt.Data[0] == '{' {
		raw = evt.Data
	}

	var in resendInbound
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, &ParseError{Provider: ResendName, Reason: "unexpected payload shape", Err: err}
	}
	from := strings.TrimSpace(in.From)
	to := in.To.first()
	if from == "" || to == "" {
		return nil, &ParseError{Provider: ResendName, Reason: "missing from or to"}
	}

	headers := domain.NormalizeHeaders(in.Headers)
	id := strings.TrimSpace(headers["message-id"])
	if id == "" {
		id = "resend-" + ulid.Make().String()
	}

	received := r.now()
	if in.CreatedAt != "" {
		if t, err := time.Parse(time.RFC3339, in.CreatedAt); err == nil {
			received = t
		}
	}

	return &domain.InboundEmail{
		ID:         id,
		From:       from,
		To:         to,
		Subject:    in.Subject,
		Text:       in.Text,
		HTML:       in.HTML,
		Headers:    headers,
		ReceivedAt: received,
	}, nil
}

type resendSendBody struct {
	From    string            `json:"from"`
	To      []string          `json:"to"`
	Subject string            `json:"subject"`
	Text    string            `json:"text,omitempty"`
	HTML    string            `json:"html,omitempty"`
	ReplyTo string            `json:"reply_to,omitempty"`
	CC      []string          `json:"cc,omitempty"`
	BCC     []string          `json:"bcc,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

type resendSendResponse struct {
	ID string `json:"id"`
}

func (r *Resend) SendEmail(ctx context.Context, req *domain.OutboundSendRequest) (string, error) {
	from := r.cfg.From
	if from == "" {
		from = req.ReplyTo
	}
	payload := resendSendBody{
		From:    from,
		To:      []string{req.To},
		Subject: req.Subject,
		Text:    req.Text,
		HTML:    req.HTML,
		ReplyTo: req.ReplyTo,
		CC:      req.CC,
		BCC:     req.BCC,
		Headers: req.Headers,
	}

	resp, err := r.post(ctx, "/emails", payload)
	if err != nil {
		return "", &ProviderError{Provider: ResendName, Err: err}
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &ProviderError{Provider: ResendName, StatusCode: resp.StatusCode, Body: string(data)}
	}

	var out resendSendResponse
	if err := json.Unmarshal(data, &out); err != nil || out.ID == "" {
		return "", &ProviderError{Provider: ResendName, StatusCode: resp.StatusCode, Body: string(data), Err: errors.New("response has no message id")}
	}
	r.logger.Debug("resend email sent", zap.String("id", out.ID), zap.String("to", req.To))
	return out.ID, nil
}

func (r *Resend) SignatureFromHeaders(h http.Header) string {
	return h.Get(ResendSignatureHeader)
}

func (r *Resend) VerifyWebhookSignature(payload []byte, signature string) bool {
	return verifyTimestampedHMAC(r.cfg.WebhookSecret, payload, signature, r.now(), r.cfg.Tolerance)
}

// ValidateConfig sends a deliberately incomplete email. A valid key gets a
// validation error back; an invalid one gets 401/403.
func (r *Resend) ValidateConfig(ctx context.Context) (bool, error) {
	if r.cfg.APIKey == "" {
		return false, errors.New("RESEND_API_KEY not configured")
	}
	resp, err := r.post(ctx, "/emails", resendSendBody{From: "test@test.com", To: []string{"test@test.com"}, Subject: "Test", Text: "Test"})
	if err != nil {
		return false, err
	}
	resp.Body.Close()
	return resp.StatusCode != http.StatusUnauthorized && resp.StatusCode != http.StatusForbidden, nil
}

func (r *Resend) post(ctx context.Context, path string, body any) (*http.Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.BaseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+r.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	return r.client.Do(req)
}
