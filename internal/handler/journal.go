package handler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"clawderous/internal/command"
	"clawderous/internal/dispatch"
	"clawderous/internal/domain"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

type Log struct{ deps *Deps }

func (h *Log) Execute(ctx context.Context, cmd *command.Command, req *dispatch.Request) (domain.ExecutionResult, error) {
	f, err := fieldsOf[command.ArgsFields](cmd)
	if err != nil {
		return domain.ExecutionResult{}, err
	}
	if h.deps.Journal == nil {
		return domain.Fail("The journal is not available right now."), nil
	}
	text := f.Body
	if text == "" {
		text = strings.Join(f.Args, " ")
	}
	if text == "" {
		return domain.Fail("Nothing to log. Usage: /log <entry>, or put the entry in the email body."), nil
	}

	entry := fmt.Sprintf("[%s] %s: %s", h.deps.now().UTC().Format(time.RFC3339), subjectOf(req), text)
	if err := h.deps.Journal.AppendJournal(ctx, senderOf(req), entry); err != nil {
		h.deps.logger().Error("journal append failed", zap.String("owner", senderOf(req)), zap.Error(err))
		return domain.Fail("Could not write to your journal. Please try again later."), nil
	}
	res := domain.Ok("📓 Entry added to journal.")
	res.Data = map[string]any{"entry": entry}
	return res, nil
}

type Remind struct{ deps *Deps }

func (h *Remind) Execute(ctx context.Context, cmd *command.Command, req *dispatch.Request) (domain.ExecutionResult, error) {
	f, err := fieldsOf[command.ArgsFields](cmd)
	if err != nil {
		return domain.ExecutionResult{}, err
	}
	if h.deps.Journal == nil {
		return domain.Fail("Reminders are not available right now."), nil
	}
	message := strings.Join(f.Args, " ")
	if message == "" {
		message = subjectOf(req)
	}

	r := &domain.Reminder{
		ID:        ulid.Make().String(),
		Owner:     senderOf(req),
		Message:   message,
		Body:      f.Body,
		CreatedAt: h.deps.now().UTC().Format(time.RFC3339),
	}
	if err := h.deps.Journal.AddReminder(ctx, r); err != nil {
		h.deps.logger().Error("reminder save failed", zap.String("owner", r.Owner), zap.Error(err))
		return domain.Fail("Could not save your reminder. Please try again later."), nil
	}
	res := domain.Ok("⏰ Reminder created.")
	res.Data = map[string]any{"id": r.ID, "message": r.Message, "created": r.CreatedAt}
	return res, nil
}
