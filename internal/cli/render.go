package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/xolex/xolex/internal/models"
	"github.com/xolex/xolex/internal/operations"
)

const (
	msgNoOperations = "No operations found."
	timeFormat      = "2006-01-02 15:04"
)

var (
	expeditionAccent = color.New(color.FgBlue, color.Bold)
	receptionAccent  = color.New(color.FgGreen, color.Bold)
	unknownAccent    = color.New(color.Faint)
	label            = color.New(color.FgHiBlack)
)

// typeAccent returns the color for an operation type.
func typeAccent(t models.OperationType) *color.Color {
	switch t {
	case models.OperationExpedition:
		return expeditionAccent
	case models.OperationReception:
		return receptionAccent
	default:
		return unknownAccent
	}
}

// statusBadge renders a status; in-transit stands out, completed takes the
// type accent.
func statusBadge(status string, accent *color.Color) string {
	switch status {
	case "":
		return ""
	case models.StatusInTransit:
		return color.New(color.FgBlack, color.BgYellow).Sprintf(" %s ", status)
	case models.StatusCompleted:
		return accent.Sprintf("[%s]", status)
	default:
		return color.New(color.FgWhite).Sprintf("[%s]", status)
	}
}

func formatWhen(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format(timeFormat)
}

// printOperation writes one operation card.
func printOperation(w io.Writer, op *models.Operation) {
	accent := typeAccent(op.Type)

	typ := string(op.Type)
	if typ == "" {
		typ = "UNKNOWN"
	}
	header := accent.Sprint(strings.ToUpper(typ))
	if badge := statusBadge(op.Status, accent); badge != "" {
		header += "  " + badge
	}
	fmt.Fprintln(w, header)

	if bn := op.BatchNumber(); bn != "" {
		fmt.Fprintf(w, "  %s %s\n", label.Sprint("Batch:"), accent.Sprint(bn))
	}
	if op.Name != "" {
		fmt.Fprintf(w, "  %s %s\n", label.Sprint("Tracking:"), op.Name)
	}
	fmt.Fprintf(w, "  %s %s   %s %s\n",
		label.Sprint("Qty:"), op.Quantity.String(),
		label.Sprint("Site:"), op.Site)
	fmt.Fprintf(w, "  %s %s\n", label.Sprint("Destination:"), op.Destination)
	if when := formatWhen(op.When()); when != "" {
		fmt.Fprintf(w, "  %s\n", label.Sprint(when))
	}
}

// printOperations writes every operation, or the empty notice.
func printOperations(w io.Writer, snap operations.Snapshot) {
	if len(snap) == 0 {
		fmt.Fprintln(w, msgNoOperations)
		return
	}
	for i := range snap {
		if i > 0 {
			fmt.Fprintln(w)
		}
		printOperation(w, &snap[i])
	}
}

// printTotals writes the summary line.
func printTotals(w io.Writer, t operations.Totals) {
	fmt.Fprintf(w, "%s %d   %s %d\n",
		label.Sprint("Total Expeditions:"), t.Expeditions,
		label.Sprint("Total Receptions:"), t.Receptions)
}

func printSuccess(w io.Writer, msg string) {
	color.New(color.FgGreen).Fprintln(w, msg)
}

func printFailure(w io.Writer, msg string) {
	color.New(color.FgRed).Fprintln(w, msg)
}
