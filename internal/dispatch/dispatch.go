// Package dispatch resolves command names to handlers and runs them.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"clawderous/internal/command"
	"clawderous/internal/domain"
	"clawderous/internal/logging"

	"go.uber.org/zap"
)

// ErrHandlerMismatch marks a handler that was given a command it was not
// built for. It is a programming error and aborts the request.
var ErrHandlerMismatch = errors.New("handler received mismatched command")

// Request is the per-message execution context.
type Request struct {
	Sender string // normalized address of the authenticated sender
	Email  *domain.InboundEmail
}

// Handler executes one command. It converts its collaborators' failures into
// an unsuccessful ExecutionResult; the only error it returns is
// ErrHandlerMismatch.
type Handler interface {
	Execute(ctx context.Context, cmd *command.Command, req *Request) (domain.ExecutionResult, error)
}

type HandlerFunc func(ctx context.Context, cmd *command.Command, req *Request) (domain.ExecutionResult, error)

func (f HandlerFunc) Execute(ctx context.Context, cmd *command.Command, req *Request) (domain.ExecutionResult, error) {
	return f(ctx, cmd, req)
}

// Registry maps lowercased command names to handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	frozen   bool
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

func (r *Registry) Register(name string, h Handler) error {
	name = normalize(name)
	if name == "" || h == nil {
		return errors.New("register: empty name or nil handler")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return fmt.Errorf("register /%s: registry is frozen", name)
	}
	if _, exists := r.handlers[name]; exists {
		return fmt.Errorf("register /%s: already registered", name)
	}
	r.handlers[name] = h
	return nil
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(name), string(command.Marker)))
}

// Freeze ends registration. Call it before accepting traffic.
func (r *Registry) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

func (r *Registry) Lookup(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[normalize(name)]
	return h, ok
}

// Names returns the registered command names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for n := range r.handlers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

type Dispatcher struct {
	registry *Registry
	logger   *zap.Logger
}

func NewDispatcher(registry *Registry, logger *zap.Logger) *Dispatcher {
	logger = logging.OrNop(logger)
	return &Dispatcher{registry: registry, logger: logger}
}

// Dispatch runs the handler for cmd and waits for it. An unknown name is a
// normal unsuccessful result, not an error.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd *command.Command, req *Request) (domain.ExecutionResult, error) {
	h, ok := d.registry.Lookup(cmd.Name)
	if !ok {
		d.logger.Debug("unknown command", zap.String("command", cmd.Name))
		return domain.Fail(fmt.Sprintf("Unknown command: /%s", cmd.Name)), nil
	}

	res, err := h.Execute(ctx, cmd, req)
	if err != nil {
		if !errors.Is(err, ErrHandlerMismatch) {
			err = fmt.Errorf("%w: /%s returned %v", ErrHandlerMismatch, cmd.Name, err)
		}
		d.logger.Error("handler contract violation", zap.String("command", cmd.Name), zap.Error(err))
		return domain.ExecutionResult{}, err
	}
	return res, nil
}
