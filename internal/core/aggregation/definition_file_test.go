package aggregation

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeDefinitionFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLoadDefinitionsDir(t *testing.T) {
	dir := t.TempDir()
	writeDefinitionFile(t, dir, "orders.yaml", `
name: org_order_totals
match:
  event_types: [order.created]
window:
  kind: tumbling
  duration: 1m
  max_events: 1000
metrics:
  - field: amount
    operation: sum
    group_by: [currency]
  - field: user_id
    operation: distinct
`)
	writeDefinitionFile(t, dir, "sessions.yaml", `
name: user_sessions
window:
  kind: session
  session_gap: 30s
metrics:
  - field: page
    operation: count
`)
	writeDefinitionFile(t, dir, "notes.txt", "ignored, not yaml")

	defs, err := LoadDefinitionsDir(dir)
	require.NoError(t, err)
	require.Len(t, defs, 2)

	byName := make(map[string]*Definition, len(defs))
	for _, d := range defs {
		byName[d.Name] = d
	}

	orders := byName["org_order_totals"]
	require.NotNil(t, orders)
	require.Equal(t, KindTumbling, orders.Window.Kind)
	require.Equal(t, time.Minute, orders.Window.Duration)
	require.Equal(t, 1000, orders.Window.MaxEvents)
	require.Equal(t, []string{"order.created"}, orders.Match.EventTypes)
	require.Len(t, orders.Metrics, 2)
	require.Equal(t, []string{"currency"}, orders.Metrics[0].GroupBy)

	sessions := byName["user_sessions"]
	require.NotNil(t, sessions)
	require.Equal(t, KindSession, sessions.Window.Kind)
	require.Equal(t, 30*time.Second, sessions.Window.SessionGap)
}

func TestLoadDefinitionsDirMissing(t *testing.T) {
	defs, err := LoadDefinitionsDir(filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	require.Empty(t, defs)
}

func TestLoadDefinitionsDirDuplicateName(t *testing.T) {
	dir := t.TempDir()
	def := `
name: dup
window:
  kind: tumbling
  duration: 1m
metrics:
  - field: a
    operation: count
`
	writeDefinitionFile(t, dir, "a.yaml", def)
	writeDefinitionFile(t, dir, "b.yaml", def)

	_, err := LoadDefinitionsDir(dir)
	require.Error(t, err)
	require.Contains(t, err.Error(), "duplicates")
}

func TestLoadDefinitionsDirInvalidDefinition(t *testing.T) {
	dir := t.TempDir()
	writeDefinitionFile(t, dir, "bad.yaml", `
name: bad
window:
  kind: sliding
  duration: 10s
  slide_interval: 1m
metrics:
  - field: a
    operation: count
`)

	_, err := LoadDefinitionsDir(dir)
	require.Error(t, err)
	require.Contains(t, err.Error(), "slide_interval")
}

func TestLoadDefinitionsDirSkipsEmptyFiles(t *testing.T) {
	dir := t.TempDir()
	writeDefinitionFile(t, dir, "empty.yaml", "# just a comment\n")

	defs, err := LoadDefinitionsDir(dir)
	require.NoError(t, err)
	require.Empty(t, defs)
}
