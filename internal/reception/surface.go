package reception

import (
	"context"
	"sync"
)

// Surface is one place triggers come from: the scan view or the manual entry
// form. It holds at most one attempt at a time.
//
// On the scan surface the attempt is held until Reset, so a code that keeps
// being reported (or any other code) is ignored after the first read. On the
// manual surface a failed attempt is replaced by the next submit, which is
// the user pressing the button again; an attempt still in flight is not.
type Surface struct {
	r      *Reconciler
	source Source

	mu      sync.Mutex
	current *Attempt
	closed  bool
}

// OpenSurface creates a surface for source.
func (r *Reconciler) OpenSurface(source Source) *Surface {
	return &Surface{r: r, source: source}
}

// Source returns the kind of surface.
func (s *Surface) Source() Source { return s.source }

// Current returns the attempt the surface holds, or nil.
func (s *Surface) Current() *Attempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Submit delivers a token. It returns ErrDuplicateTrigger when the surface
// already holds an attempt that may not be replaced, and ErrSurfaceClosed
// when the surface was closed before or during the attempt.
func (s *Surface) Submit(ctx context.Context, token string) (*Outcome, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSurfaceClosed
	}
	if s.current != nil && !s.replaceable(s.current) {
		s.mu.Unlock()
		return nil, ErrDuplicateTrigger
	}
	a := s.r.NewAttempt(s.source)
	s.current = a
	s.mu.Unlock()

	out, err := a.Trigger(ctx, token)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSurfaceClosed
	}
	return out, err
}

func (s *Surface) replaceable(a *Attempt) bool {
	return s.source == SourceManual && a.State() == Failed
}

// Reset discards the held attempt so the next token starts a new one.
// An attempt still in flight keeps running; its result is not reported
// through Current any more.
func (s *Surface) Reset() {
	s.mu.Lock()
	s.current = nil
	s.mu.Unlock()
}

// Close discards the surface. Results that arrive afterwards are dropped.
func (s *Surface) Close() {
	s.mu.Lock()
	s.closed = true
	s.current = nil
	s.mu.Unlock()
}

// Closed reports whether Close was called.
func (s *Surface) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
