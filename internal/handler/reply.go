package handler

import (
	"context"
	"fmt"

	"clawderous/internal/command"
	"clawderous/internal/dispatch"
	"clawderous/internal/domain"

	"github.com/emersion/go-message/mail"
	"go.uber.org/zap"
)

type Reply struct{ deps *Deps }

func (h *Reply) Execute(ctx context.Context, cmd *command.Command, req *dispatch.Request) (domain.ExecutionResult, error) {
	f, err := fieldsOf[command.ReplyFields](cmd)
	if err != nil {
		return domain.ExecutionResult{}, err
	}
	if f.To == "" || f.Content == "" {
		return domain.Fail("Usage: /reply <to> <content>, or put the content in the email body."), nil
	}
	addr, err := mail.ParseAddress(f.To)
	if err != nil {
		return domain.Fail(fmt.Sprintf("%q is not a valid email address.", f.To)), nil
	}
	if h.deps.Sender == nil {
		return domain.Fail("Sending email is not available right now."), nil
	}

	subject := "Message via Clawderous"
	if from := senderOf(req); from != "" {
		subject = "Message from " + from
	}
	id, err := h.deps.Sender.SendEmail(ctx, &domain.OutboundSendRequest{
		To:      addr.Address,
		Subject: subject,
		Text:    f.Content,
		ReplyTo: senderOf(req),
	})
	if err != nil {
		h.deps.logger().Error("reply send failed", zap.String("to", addr.Address), zap.Error(err))
		return domain.Fail(fmt.Sprintf("Could not send the reply to %s. Please try again later.", addr.Address)), nil
	}

	res := domain.Ok("↩️ Reply sent to " + addr.Address)
	res.Data = map[string]any{"to": addr.Address, "messageId": id}
	return res, nil
}
