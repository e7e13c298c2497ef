package reception

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/xolex/xolex/internal/operations"
	"github.com/xolex/xolex/internal/remote"
	"github.com/xolex/xolex/internal/session"
)

// DefaultCloseDelay is how long a success stays visible before the surface
// closes and the operations are re-fetched.
const DefaultCloseDelay = 800 * time.Millisecond

// Submitter posts reception confirmations.
type Submitter interface {
	SubmitReception(ctx context.Context, credential string, req *remote.ReceptionRequest) (*remote.ReceptionResponse, error)
}

// Operations is the snapshot an attempt resolves against and refreshes.
type Operations interface {
	Snapshot() operations.Snapshot
	Refresh(ctx context.Context) (operations.Snapshot, error)
}

// Reconciler holds what every attempt shares: the session, the operations
// cache and the remote client. Attempts never patch the snapshot themselves;
// a successful one schedules a refresh instead.
type Reconciler struct {
	session *session.Context
	cache   Operations
	client  Submitter
	logger  *slog.Logger

	closeDelay time.Duration
	afterFunc  func(time.Duration, func())
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithCloseDelay overrides DefaultCloseDelay.
func WithCloseDelay(d time.Duration) Option {
	return func(r *Reconciler) {
		if d >= 0 {
			r.closeDelay = d
		}
	}
}

// WithLogger sets the logger used for attempt lifecycle events.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reconciler) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewReconciler creates a Reconciler.
func NewReconciler(sess *session.Context, cache Operations, client Submitter, opts ...Option) *Reconciler {
	r := &Reconciler{
		session:    sess,
		cache:      cache,
		client:     client,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		closeDelay: DefaultCloseDelay,
		afterFunc: func(d time.Duration, f func()) {
			time.AfterFunc(d, f)
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CloseDelay returns the delay between a success and the follow-up refresh.
func (r *Reconciler) CloseDelay() time.Duration { return r.closeDelay }

// NewAttempt returns a fresh, untriggered attempt.
func (r *Reconciler) NewAttempt(source Source) *Attempt {
	return newAttempt(r, source)
}

// scheduleRefresh re-fetches operations once the close delay has passed.
// The refresh outlives the caller's context; a cancelled trigger must not
// leave the snapshot stale.
func (r *Reconciler) scheduleRefresh(ctx context.Context, a *Attempt) {
	refreshCtx := context.WithoutCancel(ctx)
	r.afterFunc(r.closeDelay, func() {
		_, err := r.cache.Refresh(refreshCtx)
		if err != nil {
			r.logger.Warn("refresh after reception failed", "attempt", a.id, "error", err)
		}
		a.finishRefresh(err)
	})
}
