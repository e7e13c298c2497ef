package reception

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xolex/xolex/internal/models"
	"github.com/xolex/xolex/internal/operations"
	"github.com/xolex/xolex/internal/remote"
	"github.com/xolex/xolex/internal/session"
)

type fakeSubmitter struct {
	mu       sync.Mutex
	requests []remote.ReceptionRequest
	creds    []string
	err      error
	wait     chan struct{}
	entered  chan struct{}
}

func (f *fakeSubmitter) SubmitReception(ctx context.Context, credential string, req *remote.ReceptionRequest) (*remote.ReceptionResponse, error) {
	f.mu.Lock()
	f.requests = append(f.requests, *req)
	f.creds = append(f.creds, credential)
	f.mu.Unlock()

	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.wait != nil {
		<-f.wait
	}
	if f.err != nil {
		return nil, f.err
	}
	return &remote.ReceptionResponse{Message: "ok"}, nil
}

func (f *fakeSubmitter) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

type fakeOps struct {
	mu        sync.Mutex
	snap      operations.Snapshot
	refreshes int
	err       error
}

func (f *fakeOps) Snapshot() operations.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

func (f *fakeOps) Refresh(context.Context) (operations.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++
	return f.snap, f.err
}

func (f *fakeOps) refreshCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshes
}

func credential(payload string) string {
	return "h." + base64.RawURLEncoding.EncodeToString([]byte(payload)) + ".s"
}

func expedition(id int64, status, name string) models.Operation {
	return models.Operation{
		ID:     models.FlexInt(id),
		Type:   models.OperationExpedition,
		Status: status,
		Name:   name,
	}
}

type harness struct {
	r    *Reconciler
	sub  *fakeSubmitter
	ops  *fakeOps
	sess *session.Context
}

func newHarness(t *testing.T, snap operations.Snapshot) *harness {
	t.Helper()
	h := &harness{
		sub:  &fakeSubmitter{},
		ops:  &fakeOps{snap: snap},
		sess: session.New(credential(`{"id":"u-1","name":"Ana"}`)),
	}
	h.r = NewReconciler(h.sess, h.ops, h.sub, WithCloseDelay(0))
	return h
}

func waitSettled(t *testing.T, a *Attempt) {
	t.Helper()
	select {
	case <-a.Settled():
	case <-time.After(2 * time.Second):
		t.Fatal("attempt did not settle")
	}
}

func TestResolve(t *testing.T) {
	snap := operations.Snapshot{
		{ID: models.FlexInt(1), Type: models.OperationReception, Status: "in-transit", Name: "TRK-100"},
		expedition(2, "completed", "TRK-100"),
		expedition(3, "in-transit", "trk-100"),
		expedition(4, "in-transit", "TRK-100"),
		expedition(5, "in-transit", "TRK-100"),
	}

	op, err := Resolve("TRK-100", snap)
	require.NoError(t, err)
	assert.Equal(t, "4", op.ID.String(), "first qualifying operation in snapshot order")

	_, err = Resolve("TRK-999", snap)
	var nm *NoMatchError
	require.ErrorAs(t, err, &nm)
	assert.Equal(t, "TRK-999", nm.Token)

	_, err = Resolve("", snap)
	assert.ErrorAs(t, err, &nm)

	_, err = Resolve("TRK-100", nil)
	assert.ErrorAs(t, err, &nm)
}

func TestResolve_Deterministic(t *testing.T) {
	snap := operations.Snapshot{expedition(7, "in-transit", "A"), expedition(8, "in-transit", "A")}
	first, err := Resolve("A", snap)
	require.NoError(t, err)
	for range 10 {
		again, err := Resolve("A", snap)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestNoMatchError_MessageBySource(t *testing.T) {
	assert.Equal(t, "No matching expedition found for this QR code.",
		(&NoMatchError{Source: SourceScan}).Error())
	assert.Equal(t, "No matching expedition found for this tracking ID.",
		(&NoMatchError{Source: SourceManual}).Error())
}

func TestAttempt_SuccessfulScan(t *testing.T) {
	h := newHarness(t, operations.Snapshot{expedition(1, "in-transit", "TRK-100")})
	a := h.r.NewAttempt(SourceScan)

	out, err := a.Trigger(context.Background(), "TRK-100")
	require.NoError(t, err)
	assert.Equal(t, MsgSuccess, out.Message)
	assert.Equal(t, "1", out.Operation.ID.String())

	require.Len(t, h.sub.requests, 1)
	req := h.sub.requests[0]
	assert.True(t, req.OperationID.Equal(models.FlexInt(1)))
	assert.True(t, req.OperationID.Numeric())
	assert.Equal(t, "u-1", req.UserID)
	assert.Equal(t, h.sess.Credential(), h.sub.creds[0])

	assert.Equal(t, Succeeded, a.State())
	assert.True(t, a.Latched())

	waitSettled(t, a)
	assert.Equal(t, 1, h.ops.refreshCount())
	assert.NoError(t, a.RefreshErr())
}

func TestAttempt_NoMatchSubmitsNothing(t *testing.T) {
	h := newHarness(t, operations.Snapshot{expedition(1, "in-transit", "TRK-100")})
	a := h.r.NewAttempt(SourceScan)

	_, err := a.Trigger(context.Background(), "TRK-999")
	var nm *NoMatchError
	require.ErrorAs(t, err, &nm)
	assert.Equal(t, SourceScan, nm.Source)
	assert.Equal(t, "No matching expedition found for this QR code.", UserMessage(err))

	assert.Equal(t, 0, h.sub.calls())
	assert.Equal(t, Failed, a.State())
	assert.False(t, a.Latched())
	waitSettled(t, a)
	assert.Equal(t, 0, h.ops.refreshCount())
}

func TestAttempt_CompletedExpeditionIsNotReceivable(t *testing.T) {
	h := newHarness(t, operations.Snapshot{expedition(1, "completed", "TRK-100")})
	_, err := h.r.NewAttempt(SourceManual).Trigger(context.Background(), "TRK-100")
	var nm *NoMatchError
	require.ErrorAs(t, err, &nm)
	assert.Equal(t, "No matching expedition found for this tracking ID.", UserMessage(err))
	assert.Equal(t, 0, h.sub.calls())
}

func TestAttempt_DuplicateTriggersSubmitOnce(t *testing.T) {
	h := newHarness(t, operations.Snapshot{expedition(1, "in-transit", "TRK-100")})
	h.sub.wait = make(chan struct{})
	h.sub.entered = make(chan struct{}, 1)
	a := h.r.NewAttempt(SourceScan)

	done := make(chan error, 1)
	go func() {
		_, err := a.Trigger(context.Background(), "TRK-100")
		done <- err
	}()
	<-h.sub.entered
	assert.Equal(t, Submitting, a.State())

	_, err := a.Trigger(context.Background(), "TRK-100")
	assert.ErrorIs(t, err, ErrDuplicateTrigger)

	close(h.sub.wait)
	require.NoError(t, <-done)
	assert.Equal(t, 1, h.sub.calls())

	_, err = a.Trigger(context.Background(), "TRK-100")
	assert.ErrorIs(t, err, ErrDuplicateTrigger, "terminal attempts ignore triggers too")
}

func TestAttempt_ServerRejectionKeepsMessage(t *testing.T) {
	h := newHarness(t, operations.Snapshot{expedition(1, "in-transit", "TRK-100")})
	h.sub.err = &remote.APIError{Code: "conflict", Message: "already received", Status: 409}
	a := h.r.NewAttempt(SourceManual)

	_, err := a.Trigger(context.Background(), "TRK-100")
	var se *SubmissionError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "already received", se.Message)
	assert.Equal(t, "already received", UserMessage(err))

	assert.Equal(t, Failed, a.State())
	assert.True(t, a.Latched(), "latch stays set after failure")
	waitSettled(t, a)
	assert.Equal(t, 0, h.ops.refreshCount())

	_, err = a.Trigger(context.Background(), "TRK-100")
	assert.ErrorIs(t, err, ErrDuplicateTrigger)
	assert.Equal(t, 1, h.sub.calls())
}

func TestAttempt_SubmissionFallbacks(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"empty api message", &remote.APIError{Code: "unknown", Status: 500}, MsgReceptionFailed},
		{"transport", &remote.TransportError{Err: io.ErrUnexpectedEOF}, MsgNetworkError},
		{"other", errors.New("boom"), MsgReceptionFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, operations.Snapshot{expedition(1, "in-transit", "TRK-100")})
			h.sub.err = tc.err
			_, err := h.r.NewAttempt(SourceScan).Trigger(context.Background(), "TRK-100")
			var se *SubmissionError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tc.want, se.Message)
			assert.ErrorIs(t, err, tc.err)
		})
	}
}

func TestAttempt_NotAuthenticated(t *testing.T) {
	h := newHarness(t, operations.Snapshot{expedition(1, "in-transit", "TRK-100")})
	h.r = NewReconciler(session.New(""), h.ops, h.sub)

	_, err := h.r.NewAttempt(SourceManual).Trigger(context.Background(), "TRK-100")
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	assert.Equal(t, MsgNotAuthenticated, UserMessage(err))
	assert.Equal(t, 0, h.sub.calls())
}

func TestAttempt_RefreshUsesCloseDelay(t *testing.T) {
	h := newHarness(t, operations.Snapshot{expedition(1, "in-transit", "TRK-100")})
	assert.Equal(t, DefaultCloseDelay, NewReconciler(h.sess, h.ops, h.sub).CloseDelay())
	assert.Equal(t, 800*time.Millisecond, DefaultCloseDelay)

	var scheduled []time.Duration
	var pending func()
	h.r = NewReconciler(h.sess, h.ops, h.sub)
	h.r.afterFunc = func(d time.Duration, f func()) {
		scheduled = append(scheduled, d)
		pending = f
	}

	a := h.r.NewAttempt(SourceScan)
	_, err := a.Trigger(context.Background(), "TRK-100")
	require.NoError(t, err)

	assert.Equal(t, []time.Duration{DefaultCloseDelay}, scheduled)
	assert.Equal(t, 0, h.ops.refreshCount(), "no refresh before the delay")
	select {
	case <-a.Settled():
		t.Fatal("settled before the refresh ran")
	default:
	}

	pending()
	waitSettled(t, a)
	assert.Equal(t, 1, h.ops.refreshCount())
}

func TestAttempt_RefreshSurvivesCancelledTrigger(t *testing.T) {
	h := newHarness(t, operations.Snapshot{expedition(1, "in-transit", "TRK-100")})
	ctx, cancel := context.WithCancel(context.Background())
	a := h.r.NewAttempt(SourceScan)

	_, err := a.Trigger(ctx, "TRK-100")
	require.NoError(t, err)
	cancel()

	waitSettled(t, a)
	assert.Equal(t, 1, h.ops.refreshCount())
}

func TestAttempt_RefreshFailureRecorded(t *testing.T) {
	h := newHarness(t, operations.Snapshot{expedition(1, "in-transit", "TRK-100")})
	h.ops.err = &operations.FetchError{Message: operations.MsgNetworkError}
	a := h.r.NewAttempt(SourceScan)

	_, err := a.Trigger(context.Background(), "TRK-100")
	require.NoError(t, err, "the reception itself succeeded")
	waitSettled(t, a)
	assert.Error(t, a.RefreshErr())
}

func TestSurface_ScanIgnoresRepeatedReads(t *testing.T) {
	h := newHarness(t, operations.Snapshot{expedition(1, "in-transit", "TRK-100")})
	h.sub.wait = make(chan struct{})
	h.sub.entered = make(chan struct{}, 1)
	s := h.r.OpenSurface(SourceScan)

	done := make(chan error, 1)
	go func() {
		_, err := s.Submit(context.Background(), "TRK-100")
		done <- err
	}()
	<-h.sub.entered

	_, err := s.Submit(context.Background(), "TRK-100")
	assert.ErrorIs(t, err, ErrDuplicateTrigger)

	close(h.sub.wait)
	require.NoError(t, <-done)
	assert.Equal(t, 1, h.sub.calls())
}

func TestSurface_ScanHoldsFailureUntilReset(t *testing.T) {
	h := newHarness(t, operations.Snapshot{expedition(1, "in-transit", "TRK-100")})
	s := h.r.OpenSurface(SourceScan)

	_, err := s.Submit(context.Background(), "TRK-999")
	var nm *NoMatchError
	require.ErrorAs(t, err, &nm)

	_, err = s.Submit(context.Background(), "TRK-100")
	assert.ErrorIs(t, err, ErrDuplicateTrigger)
	assert.Equal(t, 0, h.sub.calls())

	s.Reset()
	assert.Nil(t, s.Current())
	_, err = s.Submit(context.Background(), "TRK-100")
	require.NoError(t, err)
	assert.Equal(t, 1, h.sub.calls())
}

func TestSurface_ManualRetriesAfterFailure(t *testing.T) {
	h := newHarness(t, operations.Snapshot{expedition(1, "in-transit", "TRK-100")})
	s := h.r.OpenSurface(SourceManual)

	_, err := s.Submit(context.Background(), "TRK-10")
	require.Error(t, err)
	first := s.Current()

	_, err = s.Submit(context.Background(), "TRK-100")
	require.NoError(t, err)
	assert.NotSame(t, first, s.Current(), "a retry is a new attempt")
	assert.Equal(t, Failed, first.State())
	assert.Equal(t, 1, h.sub.calls())

	_, err = s.Submit(context.Background(), "TRK-100")
	assert.ErrorIs(t, err, ErrDuplicateTrigger, "a succeeded attempt is never replaced")
}

func TestSurface_CloseDropsLateResult(t *testing.T) {
	h := newHarness(t, operations.Snapshot{expedition(1, "in-transit", "TRK-100")})
	h.sub.wait = make(chan struct{})
	h.sub.entered = make(chan struct{}, 1)
	s := h.r.OpenSurface(SourceScan)

	done := make(chan error, 1)
	go func() {
		_, err := s.Submit(context.Background(), "TRK-100")
		done <- err
	}()
	<-h.sub.entered
	a := s.Current()

	s.Close()
	close(h.sub.wait)
	assert.ErrorIs(t, <-done, ErrSurfaceClosed)
	assert.True(t, s.Closed())
	assert.Equal(t, 1, h.sub.calls(), "the request already sent is not cancelled")
	assert.True(t, a.Latched())

	_, err := s.Submit(context.Background(), "TRK-100")
	assert.ErrorIs(t, err, ErrSurfaceClosed)
}

func TestSurface_IndependentSurfacesShareNoLatch(t *testing.T) {
	h := newHarness(t, operations.Snapshot{expedition(1, "in-transit", "TRK-100")})
	scan := h.r.OpenSurface(SourceScan)
	manual := h.r.OpenSurface(SourceManual)

	_, err := scan.Submit(context.Background(), "TRK-100")
	require.NoError(t, err)

	h.sub.err = &remote.APIError{Message: "already received", Status: 409}
	_, err = manual.Submit(context.Background(), "TRK-100")
	assert.Equal(t, "already received", UserMessage(err))
	assert.Equal(t, 2, h.sub.calls())
}
