package domain

import "time"

// InboundEmail is the provider-independent form of a received message.
// Every adapter produces one; nothing downstream sees vendor payloads.
type InboundEmail struct {
	ID         string            `json:"id"`
	From       string            `json:"from"`
	To         string            `json:"to"`
	Subject    string            `json:"subject"`
	Text       string            `json:"text"`
	HTML       string            `json:"html,omitempty"`
	Headers    map[string]string `json:"headers"`
	ReceivedAt time.Time         `json:"received_at"`
	Envelope   *Envelope         `json:"envelope,omitempty"`
}

type Envelope struct {
	MailFrom string   `json:"mail_from"`
	RcptTo   []string `json:"rcpt_to"`
}

// Header returns the value of a header by case-insensitive name.
func (e *InboundEmail) Header(name string) string {
	if e.Headers == nil {
		return ""
	}
	return e.Headers[NormalizeHeaderKey(name)]
}

type OutboundSendRequest struct {
	To      string            `json:"to"`
	Subject string            `json:"subject"`
	Text    string            `json:"text"`
	HTML    string            `json:"html,omitempty"`
	ReplyTo string            `json:"reply_to,omitempty"`
	CC      []string          `json:"cc,omitempty"`
	BCC     []string          `json:"bcc,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

// ExecutionResult is the only value a handler hands back to the dispatcher.
// When Success is false, Message is user-facing text.
type ExecutionResult struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	URL     string         `json:"url,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
}

func Ok(message string) ExecutionResult {
	return ExecutionResult{Success: true, Message: message}
}

func Fail(message string) ExecutionResult {
	return ExecutionResult{Success: false, Message: message}
}

// Artifact is a persisted unit of content created by a handler.
type Artifact struct {
	ID        string         `json:"id"`
	Owner     string         `json:"owner"`
	Command   string         `json:"command"`
	Title     string         `json:"title"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt int64          `json:"created_at"` // unix millis
}

type Reminder struct {
	ID        string `json:"id"`
	Owner     string `json:"owner"`
	Message   string `json:"message"`
	Body      string `json:"body"`
	CreatedAt string `json:"created"`
}
