package export

import (
	"fmt"
	"strings"

	"github.com/dusk-indust/applekraken/internal/orchestrator"
)

// transitionTriggers names what causes each transition.
var transitionTriggers = map[[2]orchestrator.State]string{
	{orchestrator.StateIdle, orchestrator.StateAwaitingDiscovery}:             "StartAutomatedOperation",
	{orchestrator.StateAwaitingDiscovery, orchestrator.StateDispatching}:      "apples found",
	{orchestrator.StateAwaitingDiscovery, orchestrator.StateDone}:             "no apples",
	{orchestrator.StateAwaitingDiscovery, orchestrator.StateIdle}:             "query failed",
	{orchestrator.StateDispatching, orchestrator.StateWaitingForPick}:         "EffectorReadyForPicking / tick",
	{orchestrator.StateDispatching, orchestrator.StateDone}:                   "queue empty",
	{orchestrator.StateWaitingForPick, orchestrator.StateWaitingForRetrieval}: "ApplePicked",
	{orchestrator.StateWaitingForPick, orchestrator.StateDispatching}:         "PickingFailed",
	{orchestrator.StateWaitingForPick, orchestrator.StateDone}:                "PickingFailed, queue empty",
	{orchestrator.StateWaitingForRetrieval, orchestrator.StateDispatching}:    "AppleRetrieved / PickingFailed",
	{orchestrator.StateWaitingForRetrieval, orchestrator.StateDone}:           "last apple removed",
	{orchestrator.StateDone, orchestrator.StateAwaitingDiscovery}:             "StartAutomatedOperation",
}

// GenerateStateDiagram produces a Mermaid stateDiagram-v2 of the picker's
// transition table.
func GenerateStateDiagram() string {
	var sb strings.Builder
	sb.WriteString("stateDiagram-v2\n")
	sb.WriteString(fmt.Sprintf("  [*] --> %s\n", orchestrator.StateIdle))

	for _, tr := range orchestrator.Transitions() {
		line := fmt.Sprintf("  %s --> %s", tr[0], tr[1])
		if trigger, ok := transitionTriggers[tr]; ok {
			line += " : " + trigger
		}
		sb.WriteString(line + "\n")
	}
	return sb.String()
}
