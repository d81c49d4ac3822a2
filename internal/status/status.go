// Package status renders picker snapshots as plain text for the CLI and
// the MCP get_status tool.
package status

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/dusk-indust/applekraken/internal/orchestrator"
)

// maxPending caps how many queued targets Render lists.
const maxPending = 5

var (
	labelStyle = lipgloss.NewStyle().Bold(true)
	failStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	doneStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
)

var stateLabels = map[orchestrator.State]string{
	orchestrator.StateIdle:                "Idle",
	orchestrator.StateAwaitingDiscovery:   "Awaiting discovery",
	orchestrator.StateDispatching:         "Dispatching",
	orchestrator.StateWaitingForPick:      "Waiting for pick",
	orchestrator.StateWaitingForRetrieval: "Waiting for retrieval",
	orchestrator.StateDone:                "Done",
}

// Label returns a human-readable state name.
func Label(s orchestrator.State) string {
	if l, ok := stateLabels[s]; ok {
		return l
	}
	return string(s)
}

// WholePercent converts a ratio in [0,1] to a percentage rounded down, so
// 100 is only reached at a ratio of exactly 1. The epsilon absorbs float
// error such as 0.57*100 = 56.99999999999999.
func WholePercent(p float64) int {
	p = min(max(p, 0), 1)
	return int(math.Floor(p*100 + 1e-9))
}

// Percent formats a ratio in [0,1] as a whole percentage.
func Percent(p float64) string {
	return fmt.Sprintf("%d%%", WholePercent(p))
}

// Bar draws a fixed-width text progress bar.
func Bar(progress float64, width int) string {
	if width <= 0 {
		return ""
	}
	progress = min(max(progress, 0), 1)
	filled := int(progress*float64(width) + 0.5)
	return "[" + strings.Repeat("#", filled) + strings.Repeat("-", width-filled) + "]"
}

// Summary is a one-line description of s.
func Summary(s orchestrator.Snapshot) string {
	removed := s.InitialCount - s.Remaining
	return fmt.Sprintf("%s: %d/%d apples (%s), %d retrieved, %d failed, %s",
		Label(s.State), removed, s.InitialCount, Percent(s.Progress),
		s.Succeeded, s.Failed, s.Elapsed.Round(time.Millisecond))
}

// Render returns a multi-line report of s.
func Render(s orchestrator.Snapshot) string {
	var sb strings.Builder

	if s.OperationID == "" {
		sb.WriteString(labelStyle.Render("No operation has been started."))
		sb.WriteString("\n")
		return sb.String()
	}

	state := Label(s.State)
	if s.State == orchestrator.StateDone {
		state = doneStyle.Render(state)
	}
	fmt.Fprintf(&sb, "%s %s\n", labelStyle.Render("Operation:"), s.OperationID)
	fmt.Fprintf(&sb, "%s %s (effector %s)\n", labelStyle.Render("State:"), state, s.EffectorState)
	fmt.Fprintf(&sb, "%s %s %s\n", labelStyle.Render("Progress:"), Bar(s.Progress, 20), Percent(s.Progress))
	fmt.Fprintf(&sb, "  %d discovered, %d remaining, %d retrieved, %d failed\n",
		s.InitialCount, s.Remaining, s.Succeeded, s.Failed)

	if s.InFlight != "" {
		fmt.Fprintf(&sb, "%s %s\n", labelStyle.Render("In flight:"), s.InFlight)
	}
	if pending := pendingAfterHead(s); len(pending) > 0 {
		shown := pending
		if len(shown) > maxPending {
			shown = shown[:maxPending]
		}
		names := make([]string, len(shown))
		for i, t := range shown {
			names[i] = string(t)
		}
		line := strings.Join(names, ", ")
		if extra := len(pending) - len(shown); extra > 0 {
			line += fmt.Sprintf(" (+%d more)", extra)
		}
		fmt.Fprintf(&sb, "%s %s\n", labelStyle.Render("Queued:"), line)
	}
	if s.LastFailure != "" {
		fmt.Fprintf(&sb, "%s %s\n", labelStyle.Render("Last failure:"), failStyle.Render(s.LastFailure))
	}
	fmt.Fprintf(&sb, "%s %s\n", labelStyle.Render("Elapsed:"), s.Elapsed.Round(time.Millisecond))
	return sb.String()
}

// pendingAfterHead drops the in-flight target from the pending list.
func pendingAfterHead(s orchestrator.Snapshot) []orchestrator.TargetID {
	if s.InFlight != "" && len(s.Pending) > 0 && s.Pending[0] == s.InFlight {
		return s.Pending[1:]
	}
	return s.Pending
}
