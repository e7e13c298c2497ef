package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/xolex/xolex/internal/operations"
)

var (
	opsSearch string
	opsAll    bool
)

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Show a greeting and the most recent operations",
	Long: `Show the most recent operations visible to you, without narrowing to
operations you own.`,
	Args: cobra.NoArgs,
	Run:  runDashboard,
}

var operationsCmd = &cobra.Command{
	Use:     "operations",
	Aliases: []string{"ops"},
	Short:   "List operations with totals",
	Long: `List your operations with expedition and reception totals.

The search matches, case-insensitively, the batch number, type, status, site,
destination and quantity. It does not match the tracking ID.

Examples:
  xolex operations
  xolex operations --search rabat
  xolex operations --all            # do not narrow to your own operations`,
	Args: cobra.NoArgs,
	Run:  runOperations,
}

func init() {
	operationsCmd.Flags().StringVarP(&opsSearch, "search", "s", "", "Filter operations")
	operationsCmd.Flags().BoolVar(&opsAll, "all", false, "Include operations owned by other users")
}

// loadOperations fills a cache for the current session.
func (c *cmdContext) loadOperations(ctx context.Context, scope operations.Scope) (*operations.Cache, operations.Snapshot) {
	cache := operations.NewCache(c.Client, c.Logger)
	snap, err := cache.Load(ctx, operations.LoadParams{
		Credential: c.Session.Credential(),
		Principal:  c.Session.Principal(),
		Scope:      scope,
	})
	if err != nil {
		exitError("%v", err)
	}
	return cache, snap
}

func runDashboard(cmd *cobra.Command, args []string) {
	c := initSessionContext()
	defer c.Close()

	p := c.Session.Principal()
	color.New(color.Bold).Printf("Hello, %s\n\n", p.DisplayName())

	_, snap := c.loadOperations(context.Background(), operations.ScopeAll)
	fmt.Println("Recent operations")
	printOperations(os.Stdout, operations.Recent(snap, operations.DashboardSize))
}

func runOperations(cmd *cobra.Command, args []string) {
	c := initSessionContext()
	defer c.Close()

	scope := operations.ScopeOwned
	if opsAll {
		scope = operations.ScopeAll
	}
	_, snap := c.loadOperations(context.Background(), scope)

	printTotals(os.Stdout, operations.Summarize(snap))
	fmt.Println()
	printOperations(os.Stdout, operations.Filter(snap, opsSearch))
}
