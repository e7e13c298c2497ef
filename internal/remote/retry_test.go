package remote

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xolex/xolex/internal/models"
)

func TestIsTransient_NilError(t *testing.T) {
	assert.False(t, isTransient(nil))
}

func TestIsTransient_ServerError(t *testing.T) {
	err := &APIError{Status: 500, Code: "internal_error", Message: "server error"}
	assert.True(t, isTransient(err))
}

func TestIsTransient_TooManyRequests(t *testing.T) {
	err := &APIError{Status: http.StatusTooManyRequests, Code: "rate_limited"}
	assert.True(t, isTransient(err))
}

func TestIsTransient_ClientError(t *testing.T) {
	err := &APIError{Status: 404, Code: "not_found", Message: "not found"}
	assert.False(t, isTransient(err))
}

func TestIsTransient_TransportError(t *testing.T) {
	assert.True(t, isTransient(&TransportError{Err: io.ErrUnexpectedEOF}))
}

func TestIsTransient_DecodeError(t *testing.T) {
	assert.False(t, isTransient(errors.New("decode response: invalid character")))
}

func TestIsTransient_Cancelled(t *testing.T) {
	assert.False(t, isTransient(&TransportError{Err: context.Canceled}))
}

func TestRetryClient_Backoff(t *testing.T) {
	rc := NewRetryClient(nil, &RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
		JitterFraction: 0.0, // no jitter for deterministic test
	})

	assert.Equal(t, 100*time.Millisecond, rc.backoff(0))
	assert.Equal(t, 200*time.Millisecond, rc.backoff(1))
	assert.Equal(t, 400*time.Millisecond, rc.backoff(2))
}

func TestRetryClient_BackoffCapped(t *testing.T) {
	rc := NewRetryClient(nil, &RetryConfig{
		MaxRetries:     10,
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     5 * time.Second,
		JitterFraction: 0.0,
	})

	assert.Equal(t, 5*time.Second, rc.backoff(10))
}

func fastRetry(max int) *RetryConfig {
	return &RetryConfig{
		MaxRetries:     max,
		InitialBackoff: 1 * time.Millisecond,
		MaxBackoff:     10 * time.Millisecond,
	}
}

func TestRetryClient_RetryExhausted(t *testing.T) {
	rc := NewRetryClient(nil, fastRetry(2))

	attempts := 0
	err := rc.retry(context.Background(), "test", func() error {
		attempts++
		return &APIError{Status: 502}
	})

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 retries")
	assert.Equal(t, 3, attempts) // initial + 2 retries
}

func TestRetryClient_ContextCancellation(t *testing.T) {
	rc := NewRetryClient(nil, &RetryConfig{
		MaxRetries:     5,
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     10 * time.Second,
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := rc.retry(ctx, "test", func() error {
		return &APIError{Status: 500}
	})

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "retry cancelled")
}

// countingClient fails a fixed number of times before succeeding.
type countingClient struct {
	failures int
	failWith error

	listCalls    int
	receiveCalls int
	loginCalls   int
}

func (c *countingClient) Login(_ context.Context, _, _ string) (string, error) {
	c.loginCalls++
	return "", c.failWith
}

func (c *countingClient) ListOperations(_ context.Context, _ string) ([]models.Operation, error) {
	c.listCalls++
	if c.listCalls <= c.failures {
		return nil, c.failWith
	}
	return []models.Operation{{Name: "TRK-1"}}, nil
}

func (c *countingClient) SubmitReception(_ context.Context, _ string, _ *ReceptionRequest) (*ReceptionResponse, error) {
	c.receiveCalls++
	return nil, c.failWith
}

func TestRetryClient_ListOperationsRetried(t *testing.T) {
	inner := &countingClient{failures: 2, failWith: &APIError{Status: 503}}
	rc := NewRetryClient(inner, fastRetry(3))

	ops, err := rc.ListOperations(context.Background(), "tok")
	require.NoError(t, err)
	assert.Len(t, ops, 1)
	assert.Equal(t, 3, inner.listCalls)
}

func TestRetryClient_NoRetryOn4xx(t *testing.T) {
	inner := &countingClient{failures: 5, failWith: &APIError{Status: 401}}
	rc := NewRetryClient(inner, fastRetry(3))

	_, err := rc.ListOperations(context.Background(), "tok")
	assert.Error(t, err)
	assert.Equal(t, 1, inner.listCalls)
}

func TestRetryClient_WritesNeverRetried(t *testing.T) {
	inner := &countingClient{failWith: &APIError{Status: 503}}
	rc := NewRetryClient(inner, fastRetry(3))

	_, err := rc.SubmitReception(context.Background(), "tok", &ReceptionRequest{OperationID: models.FlexInt(1)})
	assert.Error(t, err)
	assert.Equal(t, 1, inner.receiveCalls)

	_, err = rc.Login(context.Background(), "a@b.c", "pw")
	assert.Error(t, err)
	assert.Equal(t, 1, inner.loginCalls)
}

func TestSleep_ContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := sleep(ctx, 10*time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}
