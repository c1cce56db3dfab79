package dispatch

import (
	"context"
	"errors"
	"testing"

	"clawderous/internal/command"
	"clawderous/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func okHandler(msg string) Handler {
	return HandlerFunc(func(ctx context.Context, cmd *command.Command, req *Request) (domain.ExecutionResult, error) {
		return domain.Ok(msg), nil
	})
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register("Memo", okHandler("memo")))
	require.NoError(t, reg.Register("/blog", okHandler("blog")))
	assert.Error(t, reg.Register("memo", okHandler("dup")))
	assert.Error(t, reg.Register("", okHandler("x")))
	assert.Error(t, reg.Register("x", nil))

	_, ok := reg.Lookup("MEMO")
	assert.True(t, ok)
	assert.Equal(t, []string{"blog", "memo"}, reg.Names())

	reg.Freeze()
	assert.Error(t, reg.Register("late", okHandler("late")))
}

func TestDispatchKnown(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register("ping", okHandler("pong")))
	d := NewDispatcher(reg, zap.NewNop())

	res, err := d.Dispatch(context.Background(), &command.Command{Name: "ping"}, &Request{})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "pong", res.Message)
}

func TestDispatchUnknownIsNotAnError(t *testing.T) {
	d := NewDispatcher(NewRegistry(), nil)
	res, err := d.Dispatch(context.Background(), &command.Command{Name: "frobnicate"}, &Request{})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "Unknown command")
	assert.Equal(t, "Unknown command: /frobnicate", res.Message)
}

func TestDispatchMismatchIsFatal(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register("memo", HandlerFunc(func(ctx context.Context, cmd *command.Command, req *Request) (domain.ExecutionResult, error) {
		return domain.ExecutionResult{}, ErrHandlerMismatch
	})))
	require.NoError(t, reg.Register("odd", HandlerFunc(func(ctx context.Context, cmd *command.Command, req *Request) (domain.ExecutionResult, error) {
		return domain.ExecutionResult{}, errors.New("leaked collaborator error")
	})))
	d := NewDispatcher(reg, zap.NewNop())

	_, err := d.Dispatch(context.Background(), &command.Command{Name: "memo"}, &Request{})
	assert.True(t, errors.Is(err, ErrHandlerMismatch))

	_, err = d.Dispatch(context.Background(), &command.Command{Name: "odd"}, &Request{})
	assert.True(t, errors.Is(err, ErrHandlerMismatch))
}

func TestDispatchPassesDataThrough(t *testing.T) {
	reg := NewRegistry()
	data := map[string]any{"k": []int{1, 2}}
	require.NoError(t, reg.Register("x", HandlerFunc(func(ctx context.Context, cmd *command.Command, req *Request) (domain.ExecutionResult, error) {
		return domain.ExecutionResult{Success: true, Message: "m", Data: data}, nil
	})))
	res, err := NewDispatcher(reg, nil).Dispatch(context.Background(), &command.Command{Name: "x"}, &Request{})
	require.NoError(t, err)
	assert.Equal(t, data, res.Data)
}
