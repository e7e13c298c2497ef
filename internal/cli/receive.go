package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/xolex/xolex/internal/operations"
	"github.com/xolex/xolex/internal/reception"
	"github.com/xolex/xolex/internal/remote"
	"golang.org/x/sync/errgroup"
)

var receiveAll bool

var receiveCmd = &cobra.Command{
	Use:   "receive <tracking-id>",
	Short: "Confirm receipt of an in-transit expedition",
	Long: `Confirm that the in-transit expedition with the given tracking ID has
physically arrived. The operations list is re-fetched afterwards.

Examples:
  xolex receive TRK-100`,
	Args: cobra.ExactArgs(1),
	Run:  runReceive,
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Confirm receipts from a code scanner",
	Long: `Read decoded scan payloads from stdin, one per line (a keyboard-wedge
scanner works as is). Each payload confirms the matching in-transit
expedition. Repeated reads of a code are ignored while it is being handled
and after the API rejected it; a different code starts a new attempt, and
the same code is tried again after a network error.

Stop with Ctrl-D or Ctrl-C.`,
	Args: cobra.NoArgs,
	Run:  runScan,
}

func init() {
	receiveCmd.Flags().BoolVar(&receiveAll, "all", false, "Resolve against all visible operations, not only your own")
	scanCmd.Flags().BoolVar(&receiveAll, "all", false, "Resolve against all visible operations, not only your own")
}

func (c *cmdContext) newReconciler(ctx context.Context) *reception.Reconciler {
	scope := operations.ScopeOwned
	if receiveAll {
		scope = operations.ScopeAll
	}
	cache, _ := c.loadOperations(ctx, scope)
	return reception.NewReconciler(c.Session, cache, c.Client,
		reception.WithCloseDelay(c.Config.CloseDelay.Std()),
		reception.WithLogger(c.Logger),
	)
}

func runReceive(cmd *cobra.Command, args []string) {
	c := initSessionContext()
	defer c.Close()

	if !c.Session.Authenticated() {
		exitError("%s", reception.MsgNotAuthenticated)
	}

	ctx := context.Background()
	surface := c.newReconciler(ctx).OpenSurface(reception.SourceManual)
	defer surface.Close()

	out, err := surface.Submit(ctx, strings.TrimSpace(args[0]))
	if err != nil {
		printFailure(os.Stderr, reception.UserMessage(err))
		os.Exit(1)
	}
	printSuccess(os.Stdout, out.Message)

	<-surface.Current().Settled()
	if err := surface.Current().RefreshErr(); err != nil {
		c.Logger.Warn("operations not refreshed", "error", err)
	}
}

func runScan(cmd *cobra.Command, args []string) {
	c := initSessionContext()
	defer c.Close()

	if !c.Session.Authenticated() {
		exitError("%s", reception.MsgNotAuthenticated)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s := &scanSession{
		surface: c.newReconciler(ctx).OpenSurface(reception.SourceScan),
		out:     os.Stdout,
		logger:  c.Logger,
	}
	fmt.Fprintln(os.Stderr, "Scan a code (Ctrl-D to finish)")
	if err := s.run(ctx, os.Stdin); err != nil && !errors.Is(err, context.Canceled) {
		exitError("%v", err)
	}
}

// scanSession feeds scan payloads into a scan surface. Payloads are handled
// concurrently, the way a camera delivers callbacks, so the surface is what
// keeps a code from being submitted twice.
type scanSession struct {
	surface *reception.Surface
	out     io.Writer
	logger  *slog.Logger

	mu sync.Mutex // serializes writes to out
}

func (s *scanSession) run(ctx context.Context, in io.Reader) error {
	defer s.surface.Close()

	lines := make(chan string)
	readErr := make(chan error, 1)

	// The reader is not joined: a blocked Read on stdin cannot be
	// interrupted, and the process exits right after run returns.
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			payload := strings.TrimSpace(sc.Text())
			if payload == "" {
				continue
			}
			select {
			case lines <- payload:
			case <-ctx.Done():
				readErr <- ctx.Err()
				return
			}
		}
		readErr <- sc.Err()
	}()

	var g errgroup.Group
	for {
		select {
		case <-ctx.Done():
			// Late results are dropped by the closed surface.
			s.surface.Close()
			_ = g.Wait()
			return ctx.Err()
		case payload, ok := <-lines:
			if !ok {
				if err := g.Wait(); err != nil {
					return err
				}
				return <-readErr
			}
			g.Go(func() error {
				s.handle(ctx, payload)
				return nil
			})
		}
	}
}

func (s *scanSession) handle(ctx context.Context, payload string) {
	out, err := s.surface.Submit(ctx, payload)
	if errors.Is(err, reception.ErrDuplicateTrigger) {
		if !s.rearm(payload) {
			s.logger.Debug("scan ignored", "payload", payload)
			return
		}
		s.surface.Reset()
		out, err = s.surface.Submit(ctx, payload)
		if errors.Is(err, reception.ErrDuplicateTrigger) {
			return
		}
	}
	if errors.Is(err, reception.ErrSurfaceClosed) {
		return
	}

	s.mu.Lock()
	if err != nil {
		printFailure(s.out, reception.UserMessage(err))
	} else {
		printSuccess(s.out, fmt.Sprintf("%s %s", out.Message, payload))
	}
	s.mu.Unlock()

	if err == nil {
		// Ready for the next parcel once the operations are refreshed.
		if cur := s.surface.Current(); cur != nil {
			select {
			case <-cur.Settled():
				s.surface.Reset()
			case <-ctx.Done():
			}
		}
	}
}

// rearm reports whether a payload arriving while the surface holds an attempt
// may replace it: the attempt failed, and either the payload is a different
// code or the failure never reached the API.
func (s *scanSession) rearm(payload string) bool {
	cur := s.surface.Current()
	if cur == nil || cur.State() != reception.Failed {
		return false
	}
	return cur.Token() != payload || remote.IsTransport(cur.Err())
}
