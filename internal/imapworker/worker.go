// Package imapworker polls a mailbox over IMAP and feeds new messages to the
// command pipeline.
package imapworker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"clawderous/internal/config"
	"clawderous/internal/domain"
	"clawderous/internal/logging"
	"clawderous/internal/mailparse"
	"clawderous/internal/pipeline"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

const folder = "INBOX"

var recipientHeaders = []string{"Delivered-To", "X-Original-To", "Envelope-To"}

type Processor interface {
	Process(ctx context.Context, email *domain.InboundEmail) (pipeline.Outcome, error)
}

type UIDStore interface {
	GetFolderLastUID(ctx context.Context, folder string) (uint32, error)
	SetFolderLastUID(ctx context.Context, folder string, uid uint32) error
}

type Worker struct {
	cfg    *config.Config
	store  UIDStore
	proc   Processor
	logger *zap.Logger
}

func New(cfg *config.Config, store UIDStore, proc Processor, logger *zap.Logger) *Worker {
	logger = logging.OrNop(logger)
	return &Worker{cfg: cfg, store: store, proc: proc, logger: logger.With(zap.String("folder", folder))}
}

// Run polls until ctx is done. Poll errors are logged and retried on the
// next tick.
func (w *Worker) Run(ctx context.Context) error {
	interval := time.Duration(w.cfg.PollSeconds) * time.Second
	if interval <= 0 {
		interval = 20 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	w.logger.Info("imap worker started", zap.String("host", w.cfg.IMAPHost), zap.Duration("interval", interval))

	if err := w.poll(ctx); err != nil {
		w.logger.Error("imap poll failed", zap.Error(err))
	}
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("imap worker stopping")
			return nil
		case <-ticker.C:
			if err := w.poll(ctx); err != nil {
				w.logger.Error("imap poll failed", zap.Error(err))
			}
		}
	}
}

func (w *Worker) poll(ctx context.Context) error {
	c, err := client.DialTLS(fmt.Sprintf("%s:%d", w.cfg.IMAPHost, w.cfg.IMAPPort), nil)
	if err != nil {
		return fmt.Errorf("failed to dial IMAP: %w", err)
	}
	defer c.Logout()

	if err := c.Login(w.cfg.IMAPUser, w.cfg.IMAPPass); err != nil {
		return fmt.Errorf("failed to login: %w", err)
	}

	mbox, err := c.Select(folder, false)
	if err != nil {
		return fmt.Errorf("failed to select %s: %w", folder, err)
	}

	lastUID, err := w.store.GetFolderLastUID(ctx, folder)
	if err != nil {
		return fmt.Errorf("failed to get last UID: %w", err)
	}
	seqSet, ok := newUIDRange(lastUID, mbox.UidNext)
	if !ok {
		return nil
	}

	messages := make(chan *imap.Message, 10)
	done := make(chan error, 1)
	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchUid, imap.FetchInternalDate, imap.FetchRFC822Size, section.FetchItem()}

	go func() {
		done <- c.UidFetch(seqSet, items, messages)
	}()

	cur := uidCursor{last: lastUID, max: lastUID}
	for msg := range messages {
		// "n:*" always matches the newest message, even an old one.
		if msg.Uid <= lastUID {
			continue
		}
		if cur.blocked() {
			cur.retry(msg.Uid)
			continue
		}
		err := w.ingest(ctx, msg, section)
		switch {
		case errors.Is(err, pipeline.ErrRetryable):
			w.logger.Warn("message left for the next poll", zap.Uint32("uid", msg.Uid), zap.Error(err))
			cur.retry(msg.Uid)
		case err != nil:
			w.logger.Error("failed to ingest message", zap.Uint32("uid", msg.Uid), zap.Error(err))
			cur.done(msg.Uid)
		default:
			cur.done(msg.Uid)
		}
	}

	if err := <-done; err != nil {
		return fmt.Errorf("fetch failed: %w", err)
	}

	if next := cur.next(); next > lastUID {
		if err := w.store.SetFolderLastUID(ctx, folder, next); err != nil {
			w.logger.Error("failed to update last UID", zap.Error(err))
		}
	}
	return nil
}

// uidCursor decides how far the stored last UID may move after one poll.
// Once a message has to be retried, it and everything after it in the
// fetch are left for the next poll.
type uidCursor struct {
	last      uint32
	max       uint32
	retryFrom uint32 // 0 when nothing is left over
}

func (c *uidCursor) done(uid uint32) {
	if uid > c.max {
		c.max = uid
	}
}

func (c *uidCursor) retry(uid uint32) {
	if c.retryFrom == 0 || uid < c.retryFrom {
		c.retryFrom = uid
	}
}

func (c *uidCursor) blocked() bool { return c.retryFrom != 0 }

func (c *uidCursor) next() uint32 {
	n := c.max
	if c.retryFrom != 0 && c.retryFrom-1 < n {
		n = c.retryFrom - 1
	}
	if n < c.last {
		n = c.last
	}
	return n
}

// newUIDRange returns lastUID+1:* when the mailbox may hold newer mail.
func newUIDRange(lastUID, uidNext uint32) (*imap.SeqSet, bool) {
	if uidNext != 0 && lastUID+1 >= uidNext {
		return nil, false
	}
	seqSet := new(imap.SeqSet)
	seqSet.AddRange(lastUID+1, 0)
	return seqSet, true
}

func (w *Worker) ingest(ctx context.Context, msg *imap.Message, section *imap.BodySectionName) error {
	if w.cfg.MaxEmailBytes > 0 && msg.Size > uint32(w.cfg.MaxEmailBytes) {
		w.logger.Warn("message too large, skipped", zap.Uint32("uid", msg.Uid), zap.Uint32("size", msg.Size))
		return nil
	}
	lit := msg.GetBody(section)
	if lit == nil {
		return fmt.Errorf("server didn't return message body")
	}

	var r io.Reader = lit
	if w.cfg.MaxEmailBytes > 0 {
		r = io.LimitReader(r, int64(w.cfg.MaxEmailBytes)+1)
	}
	raw, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read body: %w", err)
	}
	if w.cfg.MaxEmailBytes > 0 && len(raw) > w.cfg.MaxEmailBytes {
		w.logger.Warn("message too large, skipped", zap.Uint32("uid", msg.Uid), zap.Int("size", len(raw)))
		return nil
	}

	email, err := ToInbound(raw, msg.InternalDate)
	if err != nil {
		return err
	}
	out, err := w.proc.Process(ctx, email)
	if err != nil {
		return fmt.Errorf("process %s: %w", email.ID, err)
	}
	if out.Command != nil {
		w.logger.Info("imap command handled", zap.Uint32("uid", msg.Uid), zap.String("command", out.Command.Name))
	}
	return nil
}

// ToInbound converts a raw RFC 5322 message into the canonical form. The ID
// is the Message-Id header, or a fresh imap-<ULID> when there is none.
func ToInbound(raw []byte, internalDate time.Time) (*domain.InboundEmail, error) {
	m, err := mailparse.Parse(bytes.NewReader(raw), recipientHeaders...)
	if err != nil {
		return nil, err
	}

	id := m.MessageID
	if id == "" {
		id = "imap-" + ulid.Make().String()
	}
	received := m.Date
	if received.IsZero() {
		received = internalDate
	}

	return &domain.InboundEmail{
		ID:         id,
		From:       m.From,
		To:         m.To,
		Subject:    m.Subject,
		Text:       m.Text,
		HTML:       m.HTML,
		Headers:    m.Headers,
		ReceivedAt: received,
	}, nil
}
