// Package handler implements the built-in email commands. Every handler
// turns collaborator failures into an unsuccessful result with plain-language
// text; none of them keep state between invocations.
package handler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"clawderous/internal/command"
	"clawderous/internal/dispatch"
	"clawderous/internal/domain"
	"clawderous/internal/summarize"

	"go.uber.org/zap"
)

// ArtifactStore is the minimal create/query contract handlers persist through.
type ArtifactStore interface {
	Create(ctx context.Context, a *domain.Artifact) (string, error)
	QueryByOwner(ctx context.Context, owner string) ([]*domain.Artifact, error)
}

type JournalStore interface {
	AppendJournal(ctx context.Context, owner, entry string) error
	AddReminder(ctx context.Context, r *domain.Reminder) error
}

type WorkflowRunner interface {
	Execute(ctx context.Context, name string, args map[string]string) (string, error)
}

type Sender interface {
	SendEmail(ctx context.Context, req *domain.OutboundSendRequest) (string, error)
}

type PageFetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Deps are the collaborators handlers are built with.
type Deps struct {
	Store      ArtifactStore
	Journal    JournalStore
	Workflows  WorkflowRunner
	Sender     Sender
	Fetcher    PageFetcher
	Summarizer summarize.Summarizer
	BaseURL    string // artifact links are BaseURL/<kind>/<id>
	Now        func() time.Time
	Logger     *zap.Logger
}

func (d *Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d *Deps) logger() *zap.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return zap.NewNop()
}

func (d *Deps) artifactURL(kind, id string) string {
	return fmt.Sprintf("%s/%s/%s", strings.TrimRight(d.BaseURL, "/"), kind, id)
}

// Builtins returns the default command table. names reports the registry's
// commands at call time, for /help.
func Builtins(deps *Deps, names func() []string) map[string]dispatch.Handler {
	return map[string]dispatch.Handler{
		"memo":    &Memo{deps: deps},
		"blog":    &Blog{deps: deps},
		"run":     &Run{deps: deps},
		"reply":   &Reply{deps: deps},
		"status":  &Status{deps: deps},
		"help":    &Help{names: names},
		"extract": &Extract{deps: deps},
		"ping":    Ping{},
		"note":    &Note{deps: deps},
		"log":     &Log{deps: deps},
		"remind":  &Remind{deps: deps},
		"claris":  &Claris{deps: deps},
		"tweet":   &Tweet{deps: deps},
	}
}

// RegisterAll registers the built-ins into reg.
func RegisterAll(reg *dispatch.Registry, deps *Deps) error {
	for name, h := range Builtins(deps, reg.Names) {
		if err := reg.Register(name, h); err != nil {
			return err
		}
	}
	return nil
}

func fieldsOf[T any](cmd *command.Command) (T, error) {
	f, ok := cmd.Fields.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: /%s carries %T, want %T", dispatch.ErrHandlerMismatch, cmd.Name, cmd.Fields, zero)
	}
	return f, nil
}

func subjectOf(req *dispatch.Request) string {
	if req == nil || req.Email == nil {
		return ""
	}
	return req.Email.Subject
}

func senderOf(req *dispatch.Request) string {
	if req == nil {
		return ""
	}
	return req.Sender
}
