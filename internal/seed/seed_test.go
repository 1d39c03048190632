package seed

import (
	"context"
	"testing"

	"github.com/smallbiznis/schoolbilling/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsurePlatformAdminsIsIdempotent(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()

	created, err := EnsurePlatformAdmins(ctx, db, []int64{1, 2, 0, 2})
	require.NoError(t, err)
	assert.Equal(t, 2, created)

	created, err = EnsurePlatformAdmins(ctx, db, []int64{1, 3})
	require.NoError(t, err)
	assert.Equal(t, 1, created)

	assert.EqualValues(t, 3, testutil.Count(t, db, `SELECT COUNT(*) FROM platform_admins`))
}

func TestEnsurePlatformAdminsWithoutIDs(t *testing.T) {
	created, err := EnsurePlatformAdmins(context.Background(), testutil.NewDB(t), nil)
	require.NoError(t, err)
	assert.Zero(t, created)

	_, err = EnsurePlatformAdmins(context.Background(), nil, []int64{1})
	assert.Error(t, err)
}
