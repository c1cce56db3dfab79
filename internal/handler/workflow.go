package handler

import (
	"context"
	"errors"
	"fmt"

	"clawderous/internal/command"
	"clawderous/internal/dispatch"
	"clawderous/internal/domain"
	"clawderous/internal/workflow"

	"go.uber.org/zap"
)

const clarisWorkflow = "claris"

type Run struct{ deps *Deps }

func (h *Run) Execute(ctx context.Context, cmd *command.Command, req *dispatch.Request) (domain.ExecutionResult, error) {
	f, err := fieldsOf[command.RunFields](cmd)
	if err != nil {
		return domain.ExecutionResult{}, err
	}
	if f.Workflow == "" {
		return domain.Fail("Usage: /run <workflow> [key=value ...]"), nil
	}

	out, fail := h.deps.runWorkflow(ctx, f.Workflow, f.Args)
	if fail != nil {
		return *fail, nil
	}
	res := domain.Ok(fmt.Sprintf("⚡ Executed %q: %s", f.Workflow, out))
	res.Data = map[string]any{"workflow": f.Workflow, "result": out}
	return res, nil
}

// Claris forwards the email body to the claris workflow.
type Claris struct{ deps *Deps }

func (h *Claris) Execute(ctx context.Context, cmd *command.Command, req *dispatch.Request) (domain.ExecutionResult, error) {
	f, err := fieldsOf[command.ArgsFields](cmd)
	if err != nil {
		return domain.ExecutionResult{}, err
	}
	if f.Body == "" {
		return domain.Fail("Nothing to forward. Put your message in the email body."), nil
	}

	_, fail := h.deps.runWorkflow(ctx, clarisWorkflow, map[string]string{
		"from":    senderOf(req),
		"subject": subjectOf(req),
		"body":    f.Body,
	})
	if fail != nil {
		return *fail, nil
	}
	res := domain.Ok("📨 Forwarded to Claris.")
	res.Data = map[string]any{"forwarded": true}
	return res, nil
}

func (d *Deps) runWorkflow(ctx context.Context, name string, args map[string]string) (string, *domain.ExecutionResult) {
	if d.Workflows == nil {
		res := domain.Fail("Workflows are not enabled on this server.")
		return "", &res
	}
	out, err := d.Workflows.Execute(ctx, name, args)
	if err == nil {
		return out, nil
	}
	if errors.Is(err, workflow.ErrNotConfigured) {
		res := domain.Fail("Workflows are not enabled on this server.")
		return "", &res
	}
	d.logger().Error("workflow failed", zap.String("workflow", name), zap.Error(err))
	res := domain.Fail(fmt.Sprintf("Workflow %q could not be run. Please try again later.", name))
	return "", &res
}
