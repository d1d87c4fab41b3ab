package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/lold2424/LessURL-Service/internal/model"
	"github.com/lold2424/LessURL-Service/internal/testutil"
	"github.com/stretchr/testify/require"
)

var (
	testDB    *testutil.TestDB
	testCache *testutil.TestCache
)

func TestMain(m *testing.M) {
	ctx := context.Background()

	var err error
	testDB, err = testutil.SetupTestDB(ctx)
	if err != nil {
		panic("failed to setup test database: " + err.Error())
	}

	testCache, err = testutil.SetupTestCache(ctx)
	if err != nil {
		panic("failed to setup test cache: " + err.Error())
	}

	code := m.Run()

	testCache.Teardown(ctx)
	testDB.Teardown(ctx)
	os.Exit(code)
}

// seedLink inserts a link directly through the database repository
func seedLink(t *testing.T, shortID string, visibility model.Visibility, createdAt time.Time) *model.ShortLink {
	t.Helper()
	link := &model.ShortLink{
		ShortID:     shortID,
		OriginalURL: "https://example.com/" + shortID,
		Title:       "title " + shortID,
		Visibility:  visibility,
		CreatedAt:   createdAt,
	}
	require.NoError(t, NewLinkRepository(testDB.Pool).Create(context.Background(), link))
	return link
}
