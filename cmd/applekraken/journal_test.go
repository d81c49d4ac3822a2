//go:build cgo

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_JournalStatusExport(t *testing.T) {
	dir := writeConfig(t, fastOrchard)
	db := filepath.Join(dir, "ops.db")
	ctx := context.Background()

	var out bytes.Buffer
	require.NoError(t, run(ctx, []string{"--config-dir", dir, "--journal", db, "run"}, &out))
	m := headerRE.FindStringSubmatch(out.String())
	require.NotNil(t, m)
	id := m[1]

	out.Reset()
	require.NoError(t, run(ctx, []string{"--config-dir", dir, "--journal", db, "status"}, &out))
	assert.Contains(t, out.String(), id)
	assert.Contains(t, out.String(), "2/3 retrieved, 1 failed  [done]")

	out.Reset()
	require.NoError(t, run(ctx, []string{"--config-dir", dir, "--journal", db, "export", id}, &out))
	var report struct {
		Operation struct {
			ID        string `json:"id"`
			Succeeded int    `json:"succeeded"`
		} `json:"operation"`
		Progress float64 `json:"progress"`
		Outcomes []struct {
			Target string `json:"target"`
		} `json:"outcomes"`
		Failures map[string]int `json:"failureReasons"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &report))
	assert.Equal(t, id, report.Operation.ID)
	assert.Equal(t, 2, report.Operation.Succeeded)
	assert.Equal(t, 1.0, report.Progress)
	assert.Len(t, report.Outcomes, 3)
	assert.Equal(t, map[string]int{"bruised": 1}, report.Failures)
}
