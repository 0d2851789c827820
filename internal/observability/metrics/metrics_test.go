package metrics

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
)

func TestResultLabels(t *testing.T) {
	require.Equal(t, "success", Result(nil))
	require.Equal(t, ResultSuccess, Result(nil))
	require.Equal(t, ResultError, Result(errors.New("boom")))
}

func TestStatusClass(t *testing.T) {
	require.Equal(t, "2xx", statusClass(200))
	require.Equal(t, "3xx", statusClass(302))
	require.Equal(t, "4xx", statusClass(404))
	require.Equal(t, "5xx", statusClass(503))
}
