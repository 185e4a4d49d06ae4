package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/arbiter/pkg/contracts"
)

// Both adapters back the same versioning operations, so list semantics
// must agree: oldest first, a positive limit keeping the newest N.
func TestListLimitAgreesAcrossAdapters(t *testing.T) {
	ctx := context.Background()

	file := newAdapter(t)
	sqlite, err := OpenSQLite(filepath.Join(t.TempDir(), "versions.db"))
	require.NoError(t, err)

	for _, a := range []Adapter{file, sqlite} {
		require.NoError(t, a.Save(ctx, record("v1", "loan_policy", 1, contracts.StatusArchived)))
		require.NoError(t, a.Save(ctx, record("v3", "loan_policy", 3, contracts.StatusActive)))
		require.NoError(t, a.Save(ctx, record("v2", "loan_policy", 2, contracts.StatusArchived)))
	}

	for name, a := range map[string]Adapter{"file": file, "sqlite": sqlite} {
		t.Run(name, func(t *testing.T) {
			records, err := a.List(ctx, "loan_policy", 2)
			require.NoError(t, err)
			require.Len(t, records, 2)
			assert.Equal(t, "v2", records[0].ID)
			assert.Equal(t, "v3", records[1].ID)

			all, err := a.List(ctx, "loan_policy", 0)
			require.NoError(t, err)
			require.Len(t, all, 3)
			assert.Equal(t, "v1", all[0].ID)
		})
	}
}
