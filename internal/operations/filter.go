package operations

import (
	"strings"

	"github.com/xolex/xolex/internal/models"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// DashboardSize is the number of operations shown on the dashboard.
const DashboardSize = 5

// Filter returns the operations where query, case-insensitively, is a
// substring of the batch number, type, status, site, destination or quantity.
// An empty query returns snap itself. The tracking token (name) is not searched.
func Filter(snap Snapshot, query string) Snapshot {
	if query == "" {
		return snap
	}

	lower := cases.Lower(language.Und)
	q := lower.String(query)

	out := make(Snapshot, 0, len(snap))
	for i := range snap {
		if matches(&snap[i], q, lower) {
			out = append(out, snap[i])
		}
	}
	return out
}

func matches(op *models.Operation, q string, lower cases.Caser) bool {
	fields := [...]string{
		op.BatchNumber(),
		string(op.Type),
		op.Status,
		op.Site,
		op.Destination,
		op.Quantity.String(),
	}
	for _, f := range fields {
		if f != "" && strings.Contains(lower.String(f), q) {
			return true
		}
	}
	return false
}

// Totals counts expeditions and everything else.
type Totals struct {
	Expeditions int
	Receptions  int
}

// Summarize counts a snapshot. Unknown types count as receptions.
func Summarize(snap Snapshot) Totals {
	var t Totals
	for i := range snap {
		if snap[i].Type == models.OperationExpedition {
			t.Expeditions++
		} else {
			t.Receptions++
		}
	}
	return t
}

// Recent returns the first n operations in snapshot order.
func Recent(snap Snapshot, n int) Snapshot {
	if n < 0 {
		n = 0
	}
	if len(snap) <= n {
		return snap
	}
	return snap[:n:n]
}
