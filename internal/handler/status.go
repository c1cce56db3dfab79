package handler

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"clawderous/internal/command"
	"clawderous/internal/dispatch"
	"clawderous/internal/domain"

	"go.uber.org/zap"
)

const (
	dayMillis  = int64(86_400_000)
	weekMillis = int64(604_800_000)
)

type Status struct{ deps *Deps }

// Counts partitions artifacts by age relative to nowMillis. Boundaries are
// exclusive: an artifact exactly one day old is not counted as today.
func Counts(artifacts []*domain.Artifact, nowMillis int64) (today, week, total int) {
	for _, a := range artifacts {
		if a == nil {
			continue
		}
		total++
		if a.CreatedAt > nowMillis-dayMillis {
			today++
		}
		if a.CreatedAt > nowMillis-weekMillis {
			week++
		}
	}
	return today, week, total
}

func (h *Status) Execute(ctx context.Context, cmd *command.Command, req *dispatch.Request) (domain.ExecutionResult, error) {
	if h.deps.Store == nil {
		return domain.Fail("Stats are not available right now."), nil
	}
	owner := senderOf(req)
	artifacts, err := h.deps.Store.QueryByOwner(ctx, owner)
	if err != nil {
		h.deps.logger().Error("failed to query artifacts", zap.String("owner", owner), zap.Error(err))
		return domain.Fail("Could not load your stats right now. Please try again later."), nil
	}

	today, week, total := Counts(artifacts, h.deps.now().UnixMilli())
	res := domain.Ok(fmt.Sprintf("🔍 Your Clawderous Stats:\n\n- Today: %d\n- This week: %d\n- Total: %d", today, week, total))
	res.Data = map[string]any{"today": today, "week": week, "total": total}
	return res, nil
}

const usage = `📧 Clawderous commands

Put a command in the subject line, or on its own line in the body:

  /memo [title] <content>      save a memo (content may be the body)
  /blog <title>                publish the body as a blog post
  /extract <url> [questions]   fetch and summarize a web page
  /run <workflow> [k=v ...]    run an automation workflow
  /reply <to> <content>        send an email on your behalf
  /status                      show how much you've saved
  /help                        show this message`

// Help lists the usage text and whatever is registered when it runs.
type Help struct{ names func() []string }

func (h *Help) Execute(context.Context, *command.Command, *dispatch.Request) (domain.ExecutionResult, error) {
	var names []string
	if h.names != nil {
		names = h.names()
	}
	sorted := make([]string, 0, len(names))
	for _, n := range names {
		sorted = append(sorted, "/"+n)
	}
	sort.Strings(sorted)

	msg := usage
	if len(sorted) > 0 {
		msg += "\n\nAvailable: " + strings.Join(sorted, ", ")
	}
	res := domain.Ok(msg)
	res.Data = map[string]any{"commands": sorted}
	return res, nil
}

type Ping struct{}

func (Ping) Execute(context.Context, *command.Command, *dispatch.Request) (domain.ExecutionResult, error) {
	return domain.Ok("🏓 Pong! Clawderous is alive."), nil
}
