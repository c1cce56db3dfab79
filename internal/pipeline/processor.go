// Package pipeline runs one inbound email through dedupe, sender policy,
// command parsing, dispatch and the reply.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"clawderous/internal/command"
	"clawderous/internal/config"
	"clawderous/internal/dispatch"
	"clawderous/internal/domain"
	"clawderous/internal/logging"

	"go.uber.org/zap"
)

// ErrRetryable marks a failure that happened before any command ran. The
// message id is released, so redelivering the message runs it again.
var ErrRetryable = errors.New("temporary failure")

type Seen interface {
	MarkSeen(ctx context.Context, id string) (bool, error)
	UnmarkSeen(ctx context.Context, id string) error
}

type Allowlist interface {
	AllowedSenders(ctx context.Context, static []string) ([]string, error)
}

type Sender interface {
	SendEmail(ctx context.Context, req *domain.OutboundSendRequest) (string, error)
}

type Options struct {
	Seen           Seen      // nil disables dedupe
	Allowlist      Allowlist // nil uses AllowedSenders as is
	AllowedSenders []string
	SendTimeout    time.Duration
	Logger         *zap.Logger
}

// Outcome describes what happened to one message.
type Outcome struct {
	Duplicate bool
	Rejected  bool
	Command   *command.Command
	Result    *domain.ExecutionResult
	ReplyID   string
}

type Processor struct {
	dispatcher *dispatch.Dispatcher
	sender     Sender
	opts       Options
	logger     *zap.Logger
}

func NewProcessor(dispatcher *dispatch.Dispatcher, sender Sender, opts Options) *Processor {
	logger := opts.Logger
	logger = logging.OrNop(logger)
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 8 * time.Second
	}
	return &Processor{dispatcher: dispatcher, sender: sender, opts: opts, logger: logger}
}

// Process handles email. A nil Outcome.Command with a nil error means the
// message carried no command and nothing was sent. A non-nil error means the
// message was not fully handled; when it comes from dispatch no reply was
// sent. Errors matching ErrRetryable left no trace and are safe to redeliver.
// Once a handler has run the id stays marked, so a failed reply is not
// retried by running the command twice.
func (p *Processor) Process(ctx context.Context, email *domain.InboundEmail) (Outcome, error) {
	log := p.logger.With(zap.String("id", email.ID), zap.String("from", email.From))

	marked := false
	if p.opts.Seen != nil && email.ID != "" {
		first, err := p.opts.Seen.MarkSeen(ctx, email.ID)
		if err != nil {
			return Outcome{}, fmt.Errorf("%w: dedupe %s: %w", ErrRetryable, email.ID, err)
		}
		if !first {
			log.Info("duplicate message skipped")
			return Outcome{Duplicate: true}, nil
		}
		marked = true
	}

	sender := domain.NormalizeAddress(email.From)
	allowed, err := p.allowed(ctx, sender)
	if err != nil {
		if marked {
			p.release(ctx, log, email.ID)
		}
		return Outcome{}, fmt.Errorf("%w: %w", ErrRetryable, err)
	}
	if !allowed {
		log.Warn("sender not allowed")
		return Outcome{Rejected: true}, nil
	}

	cmd := command.Parse(email.Subject, email.Text)
	if cmd == nil {
		log.Debug("no command found")
		return Outcome{}, nil
	}
	command.Refine(cmd, CommandBody(email, cmd))
	out := Outcome{Command: cmd}

	res, err := p.dispatcher.Dispatch(ctx, cmd, &dispatch.Request{Sender: sender, Email: email})
	if err != nil {
		log.Error("dispatch failed", zap.String("command", cmd.Name), zap.Error(err))
		return out, err
	}
	out.Result = &res
	log.Info("command executed", zap.String("command", cmd.Name), zap.Bool("success", res.Success))

	sendCtx, cancel := context.WithTimeout(ctx, p.opts.SendTimeout)
	defer cancel()
	id, err := p.sender.SendEmail(sendCtx, ReplyFor(email, res))
	if err != nil {
		log.Error("reply failed", zap.String("command", cmd.Name), zap.Error(err))
		return out, fmt.Errorf("send reply: %w", err)
	}
	out.ReplyID = id
	return out, nil
}

// release forgets id so a redelivery is processed. It runs even when ctx
// is already cancelled.
func (p *Processor) release(ctx context.Context, log *zap.Logger, id string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := p.opts.Seen.UnmarkSeen(ctx, id); err != nil {
		log.Error("failed to release message id", zap.Error(err))
	}
}

func (p *Processor) allowed(ctx context.Context, sender string) (bool, error) {
	list := p.opts.AllowedSenders
	if p.opts.Allowlist != nil {
		var err error
		list, err = p.opts.Allowlist.AllowedSenders(ctx, p.opts.AllowedSenders)
		if err != nil {
			return false, fmt.Errorf("load allowlist: %w", err)
		}
	}
	return config.SenderAllowed(list, sender), nil
}

// CommandBody is the long-form content for cmd: the whole body when the
// command came from the subject, else the body without the command line.
func CommandBody(email *domain.InboundEmail, cmd *command.Command) string {
	if command.ParseSubject(email.Subject) != nil {
		return email.Text
	}
	return strings.Replace(email.Text, cmd.Raw, "", 1)
}

// ReplyFor builds the reply for res: a status glyph, the message and the
// link when there is one.
func ReplyFor(email *domain.InboundEmail, res domain.ExecutionResult) *domain.OutboundSendRequest {
	glyph := "✅"
	if !res.Success {
		glyph = "❌"
	}
	text := glyph + " " + res.Message
	if res.URL != "" {
		text += "\n\n🔗 " + res.URL
	}

	subject := strings.TrimSpace(email.Subject)
	if !strings.HasPrefix(strings.ToLower(subject), "re:") {
		subject = "Re: " + subject
	}

	req := &domain.OutboundSendRequest{
		To:      email.From,
		Subject: subject,
		Text:    text,
	}
	if mid := email.Header("message-id"); mid != "" {
		req.Headers = map[string]string{"In-Reply-To": mid, "References": mid}
	}
	return req
}
