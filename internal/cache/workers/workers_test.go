// SPDX-License-Identifier: MIT

package workers

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBackoffForCapsAtThirtySeconds(t *testing.T) {
	require.Equal(t, emptyBackoffBase, backoffFor(1))
	require.Equal(t, 2*emptyBackoffBase, backoffFor(2))
	require.Equal(t, emptyBackoffCap, backoffFor(5))
	require.Equal(t, emptyBackoffCap, backoffFor(100))
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.Equal(t, 2, cfg.NumWorkers)
	require.Equal(t, 3, cfg.MaxConcurrentPerWorker)
	require.Equal(t, 10, cfg.BatchSize)
}
