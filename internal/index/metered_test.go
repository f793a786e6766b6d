package index

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/aleksaelezovic/tupleindex/internal/tuple"
)

// upperName changes a single operation and inherits everything else
type upperName struct {
	*Wrapper
}

func (u upperName) Name() string { return "wrapped-" + u.Wrapper.Name() }

func TestWrapperForwards(t *testing.T) {
	inner := newIndex(t, "POS")
	var w TupleIndex = upperName{NewWrapper(inner)}

	require.Equal(t, "wrapped-POS", w.Name())
	require.Equal(t, 3, w.TupleLength())
	require.Equal(t, inner.Mapping(), w.Mapping())
	require.Equal(t, 1, w.Weight(tuple.Of(wild, p1, wild)))

	require.NoError(t, w.Add(tuple.Of(s1, p1, o1)))
	require.Equal(t, []tuple.Tuple{tuple.Of(s1, p1, o1)}, find(t, inner, tuple.Of(s1, p1, o1)))
	require.Same(t, inner, NewWrapper(inner).Unwrap())
}

func TestMeteredCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	idx := NewMetered(newIndex(t, "SPO"), metrics)

	require.NoError(t, idx.Add(tuple.Of(s1, p1, o1)))
	require.NoError(t, idx.AddAll([]tuple.Tuple{tuple.Of(s2, p1, o1), tuple.Of(s2, p2, o1)}))
	require.Error(t, idx.Add(tuple.Of(s1)))
	require.Len(t, find(t, idx, tuple.Of(s2, wild, wild)), 2)

	require.Equal(t, 2.0, testutil.ToFloat64(metrics.operations.WithLabelValues("SPO", "add")))
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.failures.WithLabelValues("SPO", "add")))
	require.Equal(t, 2.0, testutil.ToFloat64(metrics.tuples.WithLabelValues("SPO", "add_all")))
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.operations.WithLabelValues("SPO", "find")))
	require.Equal(t, 1, testutil.CollectAndCount(metrics.findTime))

	size, err := idx.Size()
	require.NoError(t, err)
	require.EqualValues(t, 3, size)
}
