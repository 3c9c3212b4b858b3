package playlist

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"spoticord/internal/core"
)

type mockAppender struct {
	calls int
	err   error
	delay time.Duration
}

func (m *mockAppender) AddToPlaylist(ctx context.Context, _, _ string) error {
	m.calls++
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return m.err
}

func TestAppend(t *testing.T) {
	tests := []struct {
		name          string
		isTest        bool
		err           error
		delay         time.Duration
		expectCalls   int
		expectRemote  bool
		expectTimeout bool
	}{
		{name: "success", expectCalls: 1},
		{name: "test context is a dry run", isTest: true, err: errors.New("never called")},
		{name: "failure is remote", err: errors.New("403 forbidden"), expectCalls: 1, expectRemote: true},
		{name: "timeout is remote", delay: time.Second, expectCalls: 1, expectRemote: true, expectTimeout: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := &mockAppender{err: tt.err, delay: tt.delay}
			m := NewMutator(app, 20*time.Millisecond, zap.NewNop())

			err := m.Append(context.Background(), "T1", "P1", tt.isTest)

			if app.calls != tt.expectCalls {
				t.Errorf("calls = %d, want %d", app.calls, tt.expectCalls)
			}
			if tt.expectRemote != core.IsRemote(err) {
				t.Errorf("IsRemote(%v) = %v, want %v", err, core.IsRemote(err), tt.expectRemote)
			}
			if !tt.expectRemote && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if tt.expectTimeout && !errors.Is(err, context.DeadlineExceeded) {
				t.Errorf("expected deadline exceeded, got %v", err)
			}
		})
	}
}

func TestAppendKeepsRemoteError(t *testing.T) {
	cause := errors.New("429 rate limited")
	m := NewMutator(&mockAppender{err: cause}, time.Second, zap.NewNop())

	err := m.Append(context.Background(), "T1", "P1", false)

	if !errors.Is(err, cause) {
		t.Errorf("errors.Is(%v, cause) = false", err)
	}
	var remote *core.RemoteError
	if !errors.As(err, &remote) || remote.Err != cause {
		t.Errorf("expected *core.RemoteError wrapping the catalog error, got %v", err)
	}
}
