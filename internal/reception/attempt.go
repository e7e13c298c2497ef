package reception

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/xolex/xolex/internal/models"
	"github.com/xolex/xolex/internal/remote"
)

// State is the position of an Attempt in its lifecycle.
//
//	Idle -> Resolving -> Submitting -> Succeeded
//	                 \              \-> Failed
//	                  \-> Failed
type State int

const (
	Idle State = iota
	Resolving
	Submitting
	Succeeded
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Resolving:
		return "resolving"
	case Submitting:
		return "submitting"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool {
	return s == Succeeded || s == Failed
}

// Source is where a tracking token came from.
type Source int

const (
	SourceManual Source = iota
	SourceScan
)

func (s Source) String() string {
	if s == SourceScan {
		return "scan"
	}
	return "manual"
}

// Outcome is the result of a successful attempt.
type Outcome struct {
	Operation models.Operation
	Message   string
	Response  *remote.ReceptionResponse
}

// Attempt is one reception confirmation. It accepts a single trigger; every
// later trigger returns ErrDuplicateTrigger. A retry needs a new Attempt.
type Attempt struct {
	r      *Reconciler
	id     string
	source Source

	mu        sync.Mutex
	state     State
	latched   bool
	token     string
	operation models.Operation
	err       error
	settled   chan struct{}
	refresh   error
}

func newAttempt(r *Reconciler, source Source) *Attempt {
	return &Attempt{
		r:       r,
		id:      uuid.NewString(),
		source:  source,
		settled: make(chan struct{}),
	}
}

// ID identifies the attempt in logs.
func (a *Attempt) ID() string { return a.id }

// Source returns where the attempt's token comes from.
func (a *Attempt) Source() Source { return a.source }

// State returns the current state.
func (a *Attempt) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Latched reports whether the attempt has reached Submitting. It never resets.
func (a *Attempt) Latched() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.latched
}

// Err returns the failure of a Failed attempt.
func (a *Attempt) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.err
}

// Token returns the token the attempt was triggered with.
func (a *Attempt) Token() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.token
}

// Settled is closed once the attempt is terminal and, after a success, once
// the deferred close-and-refresh has run.
func (a *Attempt) Settled() <-chan struct{} { return a.settled }

// RefreshErr returns the error of the post-success refresh, if any.
// Only meaningful after Settled is closed.
func (a *Attempt) RefreshErr() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.refresh
}

// Trigger resolves token against the current snapshot and submits the
// matching expedition. Only the first call does anything.
func (a *Attempt) Trigger(ctx context.Context, token string) (*Outcome, error) {
	a.mu.Lock()
	if a.state != Idle {
		a.mu.Unlock()
		return nil, ErrDuplicateTrigger
	}
	a.state = Resolving
	a.token = token
	a.mu.Unlock()

	log := a.r.logger.With("attempt", a.id, "source", a.source.String())
	log.Debug("reception attempt started", "token", token)

	if !a.r.session.Authenticated() {
		return nil, a.fail(ErrNotAuthenticated)
	}

	op, err := Resolve(token, a.r.cache.Snapshot())
	if err != nil {
		var nm *NoMatchError
		if errors.As(err, &nm) {
			nm.Source = a.source
		}
		log.Info("no matching expedition", "token", token)
		return nil, a.fail(err)
	}

	a.mu.Lock()
	a.latched = true
	a.state = Submitting
	a.operation = op
	a.mu.Unlock()

	req := &remote.ReceptionRequest{
		OperationID: op.ID,
		UserID:      a.r.session.Principal().ID,
	}
	resp, err := a.r.client.SubmitReception(ctx, a.r.session.Credential(), req)
	if err != nil {
		log.Warn("reception rejected", "operation", op.ID.String(), "error", err)
		return nil, a.fail(&SubmissionError{
			Message: remote.MessageOr(err, MsgReceptionFailed, MsgNetworkError),
			Err:     err,
		})
	}

	a.mu.Lock()
	a.state = Succeeded
	a.mu.Unlock()
	log.Info("reception confirmed", "operation", op.ID.String())

	a.r.scheduleRefresh(ctx, a)

	return &Outcome{Operation: op, Message: MsgSuccess, Response: resp}, nil
}

func (a *Attempt) fail(err error) error {
	a.mu.Lock()
	a.state = Failed
	a.err = err
	a.mu.Unlock()
	close(a.settled)
	return err
}

func (a *Attempt) finishRefresh(err error) {
	a.mu.Lock()
	a.refresh = err
	a.mu.Unlock()
	close(a.settled)
}
