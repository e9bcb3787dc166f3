package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/weir-lab/project-weir/internal/core/aggregation"
)

func testDefinition(name string, eventTypes ...string) *aggregation.Definition {
	return &aggregation.Definition{
		Name:   name,
		Match:  aggregation.MatchSpec{EventTypes: eventTypes},
		Window: aggregation.WindowSpec{Kind: aggregation.KindTumbling, Duration: time.Minute},
		Metrics: []aggregation.MetricSpec{
			{SourceField: "amount", Operation: aggregation.OpSum},
		},
	}
}

func TestRegistryRegisterDuplicate(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(testDefinition("a")))

	err := r.Register(testDefinition("a"))
	require.Error(t, err)

	var dup *aggregation.DuplicateDefinitionError
	require.True(t, errors.As(err, &dup))
	require.Equal(t, "a", dup.Name)
}

func TestRegistryRemove(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(testDefinition("a")))

	def, err := r.Remove("a")
	require.NoError(t, err)
	require.Equal(t, "a", def.Name)

	_, err = r.Remove("a")
	var unknown *aggregation.UnknownDefinitionError
	require.True(t, errors.As(err, &unknown))
}

func TestRegistryGetUnknown(t *testing.T) {
	r := NewRegistry()
	_, err := r.Get("missing")

	var unknown *aggregation.UnknownDefinitionError
	require.True(t, errors.As(err, &unknown))
	require.Equal(t, "missing", unknown.Name)
}

func TestRegistryList(t *testing.T) {
	r := NewRegistry()
	require.Empty(t, r.List())

	require.NoError(t, r.Register(testDefinition("orders", "order.created")))
	require.NoError(t, r.Register(testDefinition("invoices", "invoice.paid")))

	defs := r.List()
	require.Len(t, defs, 2)

	names := []string{defs[0].Name, defs[1].Name}
	require.ElementsMatch(t, []string{"orders", "invoices"}, names)
}
