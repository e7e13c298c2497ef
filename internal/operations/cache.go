// Package operations holds the session's in-memory list of operations and the
// views derived from it.
package operations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/xolex/xolex/internal/models"
	"github.com/xolex/xolex/internal/remote"
)

// Fallback messages shown when a load fails.
const (
	MsgFetchFailed  = "failed to retrieve operations"
	MsgNetworkError = "Network error"
)

// ErrNeverLoaded is returned by Refresh before any Load.
var ErrNeverLoaded = errors.New("operations were never loaded")

// Snapshot is an ordered list of operations in server order.
// It is replaced wholesale on every load and must not be modified.
type Snapshot []models.Operation

// Scope selects whether a load is narrowed to the acting user.
type Scope int

const (
	// ScopeAll keeps everything the API returned (dashboard).
	ScopeAll Scope = iota
	// ScopeOwned keeps only operations whose userId is the principal's id
	// (full operations list). Without a principal id nothing is narrowed.
	ScopeOwned
)

func (s Scope) String() string {
	if s == ScopeOwned {
		return "owned"
	}
	return "all"
}

// Lister fetches operations from the API.
type Lister interface {
	ListOperations(ctx context.Context, credential string) ([]models.Operation, error)
}

// LoadParams are the inputs of one load. Refresh reuses the last ones.
type LoadParams struct {
	Credential string
	Principal  models.Principal
	Scope      Scope
}

// FetchError is a failed load. Message is user-facing.
type FetchError struct {
	Message string
	Err     error
}

func (e *FetchError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// State is a consistent view of the cache.
type State struct {
	Snapshot Snapshot
	Loading  bool
	Err      error
	LoadedAt time.Time
}

// Cache fetches and holds the authoritative snapshot for one session.
type Cache struct {
	client Lister
	logger *slog.Logger

	mu       sync.RWMutex
	snapshot Snapshot
	loading  bool
	err      error
	loadedAt time.Time
	last     *LoadParams
	gen      uint64
}

// NewCache creates an empty cache.
func NewCache(client Lister, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{client: client, logger: logger}
}

// Load fetches the operations and replaces the snapshot. On failure the
// previous snapshot is kept and a *FetchError is returned and recorded.
func (c *Cache) Load(ctx context.Context, params LoadParams) (Snapshot, error) {
	c.mu.Lock()
	c.gen++
	gen := c.gen
	p := params
	c.last = &p
	c.loading = true
	c.err = nil
	c.mu.Unlock()

	ops, err := c.client.ListOperations(ctx, params.Credential)
	if err == nil {
		ops = narrow(ops, params)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// A newer load started meanwhile; its result wins.
	if gen != c.gen {
		if err != nil {
			return nil, toFetchError(err)
		}
		return slices.Clone(Snapshot(ops)), nil
	}

	c.loading = false
	if err != nil {
		fe := toFetchError(err)
		c.err = fe
		c.logger.Warn("load operations failed", "error", err, "scope", params.Scope.String())
		return nil, fe
	}

	c.snapshot = Snapshot(ops)
	c.loadedAt = time.Now()
	c.logger.Debug("operations loaded", "count", len(ops), "scope", params.Scope.String())
	return slices.Clone(c.snapshot), nil
}

// Refresh repeats the last Load.
func (c *Cache) Refresh(ctx context.Context) (Snapshot, error) {
	c.mu.RLock()
	last := c.last
	c.mu.RUnlock()

	if last == nil {
		return nil, ErrNeverLoaded
	}
	return c.Load(ctx, *last)
}

// Snapshot returns a copy of the current snapshot.
func (c *Cache) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.snapshot)
}

// State returns snapshot, loading flag and last error together.
func (c *Cache) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return State{
		Snapshot: slices.Clone(c.snapshot),
		Loading:  c.loading,
		Err:      c.err,
		LoadedAt: c.loadedAt,
	}
}

func narrow(ops []models.Operation, params LoadParams) []models.Operation {
	if ops == nil {
		ops = []models.Operation{}
	}
	if params.Scope != ScopeOwned || params.Principal.ID == "" {
		return ops
	}

	owned := make([]models.Operation, 0, len(ops))
	for i := range ops {
		if ops[i].OwnedBy(params.Principal.ID) {
			owned = append(owned, ops[i])
		}
	}
	return owned
}

func toFetchError(err error) *FetchError {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe
	}
	if remote.IsTransport(err) {
		return &FetchError{Message: MsgNetworkError, Err: err}
	}
	return &FetchError{Message: MsgFetchFailed, Err: err}
}
