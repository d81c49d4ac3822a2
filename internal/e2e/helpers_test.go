package e2e

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/applekraken/internal/config"
	"github.com/dusk-indust/applekraken/internal/host"
	"github.com/dusk-indust/applekraken/internal/orchestrator"
)

// recorder collects picker events.
type recorder struct {
	mu     sync.Mutex
	events []orchestrator.Event
}

func (r *recorder) Observe(ev orchestrator.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) all() []orchestrator.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]orchestrator.Event(nil), r.events...)
}

// trace renders events one per line as "kind [target] [reason]".
func (r *recorder) trace() string {
	var b strings.Builder
	for _, ev := range r.all() {
		fields := []string{string(ev.Kind)}
		if ev.Task.Target != "" {
			fields = append(fields, string(ev.Task.Target))
		}
		if ev.Reason != "" {
			fields = append(fields, ev.Reason)
		}
		b.WriteString(strings.Join(fields, " "))
		b.WriteString("\n")
	}
	return b.String()
}

func (r *recorder) count(kind orchestrator.EventKind) int {
	n := 0
	for _, ev := range r.all() {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

func orchardFile(name string) string {
	return filepath.Join("..", "..", "testdata", "orchards", name)
}

func goldenDir() string {
	return filepath.Join("..", "..", "testdata", "golden")
}

func loadConfig(t *testing.T, name string) *config.Config {
	t.Helper()
	cfg, err := config.LoadFile(orchardFile(name))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	return cfg
}

// startSystem builds and starts a system, stopping it on cleanup.
func startSystem(t *testing.T, cfg *config.Config, observers ...orchestrator.Observer) *host.System {
	t.Helper()
	sys, err := host.NewSystem(cfg, host.SystemOptions{Observers: observers})
	require.NoError(t, err)
	require.NoError(t, sys.Start(context.Background()))
	t.Cleanup(sys.Stop)
	return sys
}
