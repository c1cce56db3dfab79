package provider

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"clawderous/internal/domain"
	"clawderous/internal/mailparse"

	"github.com/emersion/go-message/mail"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

const (
	SendGridName               = "sendgrid"
	SendGridSignatureHeader    = "X-Twilio-Email-Event-Webhook-Signature"
	SendGridTimestampHeader    = "X-Twilio-Email-Event-Webhook-Timestamp"
	sendGridDefaultBaseURL     = "https://api.sendgrid.com"
	sendGridMaxFormMemoryBytes = 32 << 20
)

type SendGridConfig struct {
	APIKey           string
	WebhookPublicKey string // base64 DER ECDSA key from the SendGrid console
	From             string
	BaseURL          string
	Tolerance        time.Duration
	Client           *http.Client
	Logger           *zap.Logger
	Now              func() time.Time
}

// SendGrid posts inbound mail as a multipart form with the envelope embedded
// as a JSON string, and sends through /v3/mail/send with personalizations.
type SendGrid struct {
	cfg    SendGridConfig
	client *http.Client
	logger *zap.Logger
	now    func() time.Time
	pub    *ecdsa.PublicKey
}

func NewSendGrid(cfg SendGridConfig) *SendGrid {
	if cfg.BaseURL == "" {
		cfg.BaseURL = sendGridDefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	s := &SendGrid{cfg: cfg, client: cfg.Client, logger: cfg.Logger, now: cfg.Now}
	if s.client == nil {
		s.client = NewHTTPClient(0)
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if cfg.WebhookPublicKey != "" {
		pub, err := ParseECDSAPublicKey(cfg.WebhookPublicKey)
		if err != nil {
			s.logger.Warn("invalid SendGrid webhook public key, all webhooks will be rejected", zap.Error(err))
		}
		s.pub = pub
	}
	return s
}

func (s *SendGrid) Name() string { return SendGridName }

type sendGridEnvelope struct {
	From string   `json:"from"`
	To   []string `json:"to"`
}

func (s *SendGrid) HandleInboundWebhook(_ context.Context, body []byte, contentType string) (*domain.InboundEmail, error) {
	form, err := parseForm(body, contentType)
	if err != nil {
		return nil, &ParseError{Provider: SendGridName, Reason: "undecodable form", Err: err}
	}

	from := strings.TrimSpace(form.Get("from"))
	to := strings.TrimSpace(form.Get("to"))
	subject := form.Get("subject")
	text := form.Get("text")
	html := form.Get("html")
	headers := map[string]string{}
	if block := form.Get("headers"); block != "" {
		headers = mailparse.ParseHeaderBlock(block)
	}

	// "Send raw" mode posts the whole MIME message instead of parsed parts.
	if raw := form.Get("email"); raw != "" {
		msg, err := mailparse.Parse(strings.NewReader(raw))
		if err != nil {
			return nil, &ParseError{Provider: SendGridName, Reason: "undecodable raw message", Err: err}
		}
		from = firstNonEmpty(from, msg.From)
		to = firstNonEmpty(to, msg.To)
		subject = firstNonEmpty(subject, msg.Subject)
		text = firstNonEmpty(text, msg.Text)
		html = firstNonEmpty(html, msg.HTML)
		if len(headers) == 0 {
			headers = msg.Headers
		}
	}

	envelope := &domain.Envelope{RcptTo: []string{}}
	if rawEnv := form.Get("envelope"); rawEnv != "" {
		var env sendGridEnvelope
		if err := json.Unmarshal([]byte(rawEnv), &env); err != nil {
			s.logger.Debug("ignoring malformed SendGrid envelope", zap.Error(err))
		} else {
			envelope.MailFrom = env.From
			if env.To != nil {
				envelope.RcptTo = env.To
			}
		}
	}

	from = firstNonEmpty(from, envelope.MailFrom)
	if to == "" && len(envelope.RcptTo) > 0 {
		to = envelope.RcptTo[0]
	}
	if from == "" || to == "" {
		return nil, &ParseError{Provider: SendGridName, Reason: "missing from or to"}
	}

	id := strings.TrimSpace(headers["message-id"])
	if id == "" {
		id = "sg-" + ulid.Make().String()
	}

	return &domain.InboundEmail{
		ID:         id,
		From:       from,
		To:         to,
		Subject:    subject,
		Text:       text,
		HTML:       html,
		Headers:    headers,
		ReceivedAt: s.now(),
		Envelope:   envelope,
	}, nil
}

func parseForm(body []byte, contentType string) (url.Values, error) {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil, fmt.Errorf("content type %q: %w", contentType, err)
	}
	switch mediaType {
	case "multipart/form-data":
		boundary := params["boundary"]
		if boundary == "" {
			return nil, errors.New("multipart body without boundary")
		}
		mf, err := multipart.NewReader(bytes.NewReader(body), boundary).ReadForm(sendGridMaxFormMemoryBytes)
		if err != nil {
			return nil, err
		}
		defer mf.RemoveAll()
		return url.Values(mf.Value), nil
	case "application/x-www-form-urlencoded":
		return url.ParseQuery(string(body))
	default:
		return nil, fmt.Errorf("unsupported content type %q", mediaType)
	}
}

type sendGridAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type sendGridPersonalization struct {
	To  []sendGridAddress `json:"to"`
	CC  []sendGridAddress `json:"cc,omitempty"`
	BCC []sendGridAddress `json:"bcc,omitempty"`
}

type sendGridContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type sendGridSendBody struct {
	Personalizations []sendGridPersonalization `json:"personalizations"`
	From             sendGridAddress           `json:"from"`
	ReplyTo          *sendGridAddress          `json:"reply_to,omitempty"`
	Subject          string                    `json:"subject"`
	Content          []sendGridContent         `json:"content"`
	Headers          map[string]string         `json:"headers,omitempty"`
}

func (s *SendGrid) SendEmail(ctx context.Context, req *domain.OutboundSendRequest) (string, error) {
	from := s.cfg.From
	if from == "" {
		from = req.ReplyTo
	}
	payload := sendGridSendBody{
		Personalizations: []sendGridPersonalization{{
			To:  []sendGridAddress{toSendGridAddress(req.To)},
			CC:  toSendGridAddresses(req.CC),
			BCC: toSendGridAddresses(req.BCC),
		}},
		From:    toSendGridAddress(from),
		Subject: req.Subject,
		Content: []sendGridContent{{Type: "text/plain", Value: req.Text}},
		Headers: req.Headers,
	}
	if req.HTML != "" {
		payload.Content = append(payload.Content, sendGridContent{Type: "text/html", Value: req.HTML})
	}
	if req.ReplyTo != "" {
		rt := toSendGridAddress(req.ReplyTo)
		payload.ReplyTo = &rt
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", &ProviderError{Provider: SendGridName, Err: err}
	}
	resp, err := s.do(ctx, http.MethodPost, "/v3/mail/send", data)
	if err != nil {
		return "", &ProviderError{Provider: SendGridName, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return "", &ProviderError{Provider: SendGridName, StatusCode: resp.StatusCode, Body: string(b)}
	}

	id := resp.Header.Get("X-Message-Id")
	if id == "" {
		id = "sg-" + ulid.Make().String()
	}
	s.logger.Debug("sendgrid email sent", zap.String("id", id), zap.String("to", req.To))
	return id, nil
}

func toSendGridAddress(s string) sendGridAddress {
	if a, err := mail.ParseAddress(s); err == nil {
		return sendGridAddress{Email: a.Address, Name: a.Name}
	}
	return sendGridAddress{Email: strings.TrimSpace(s)}
}

func toSendGridAddresses(list []string) []sendGridAddress {
	if len(list) == 0 {
		return nil
	}
	out := make([]sendGridAddress, 0, len(list))
	for _, s := range list {
		out = append(out, toSendGridAddress(s))
	}
	return out
}

// SignatureFromHeaders joins the timestamp and signature headers as
// "<timestamp>.<signature>"; empty if either is missing.
func (s *SendGrid) SignatureFromHeaders(h http.Header) string {
	sig := h.Get(SendGridSignatureHeader)
	ts := h.Get(SendGridTimestampHeader)
	if sig == "" || ts == "" {
		return ""
	}
	return ts + "." + sig
}

func (s *SendGrid) VerifyWebhookSignature(payload []byte, signature string) bool {
	return verifyECDSA(s.pub, payload, signature, s.now(), s.cfg.Tolerance)
}

func (s *SendGrid) ValidateConfig(ctx context.Context) (bool, error) {
	if s.cfg.APIKey == "" {
		return false, errors.New("SENDGRID_API_KEY not configured")
	}
	if !strings.HasPrefix(s.cfg.APIKey, "SG.") {
		return false, nil
	}
	resp, err := s.do(ctx, http.MethodGet, "/v3/scopes", nil)
	if err != nil {
		return false, err
	}
	resp.Body.Close()
	return resp.StatusCode != http.StatusUnauthorized && resp.StatusCode != http.StatusForbidden, nil
}

func (s *SendGrid) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.cfg.BaseURL+path, rdr)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return s.client.Do(req)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
