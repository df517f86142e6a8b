package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistoryRepositoryWithoutDatabase(t *testing.T) {
	repos := map[string]*HistoryRepository{
		"nil repository": nil,
		"nil database":   NewHistoryRepository(nil),
	}

	for name, repo := range repos {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			assert.False(t, repo.Enabled())
			assert.NoError(t, repo.RecordPlay(ctx, 1, "A"))
			assert.NoError(t, repo.Forget(ctx, 1))

			count, err := repo.PlayCount(ctx, 1)
			require.NoError(t, err)
			assert.Equal(t, int64(0), count)
		})
	}
}

func TestOpenRequiresURL(t *testing.T) {
	_, err := Open(context.Background(), "")
	assert.Error(t, err)
}
