package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLog(t *testing.T) *DB {
	t.Helper()

	db, err := NewTestDB()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestInsertAndQuery(t *testing.T) {
	t.Parallel()

	db := newTestLog(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, db.InsertQuestion(ctx, "U1", "What is qi deficiency?", now.Add(-time.Hour)))
	require.NoError(t, db.InsertQuestion(ctx, "U2", "五行相生的順序是什麼?", now.Add(-time.Minute)))
	require.NoError(t, db.InsertQuestion(ctx, "U1", "老問題", now.Add(-10*24*time.Hour)))

	got, err := db.QuestionsSince(ctx, now.Add(-7*24*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 2)

	// Oldest first.
	assert.Equal(t, "What is qi deficiency?", got[0].Text)
	assert.Equal(t, "五行相生的順序是什麼?", got[1].Text)

	// User IDs are hashed before storage.
	assert.NotEqual(t, "U1", got[0].UserHash)
	assert.Equal(t, HashUserID("U1"), got[0].UserHash)
}

func TestCounts(t *testing.T) {
	t.Parallel()

	db := newTestLog(t)
	ctx := context.Background()
	now := time.Now()

	for i := 0; i < 3; i++ {
		require.NoError(t, db.InsertQuestion(ctx, "U1", "q", now))
	}
	require.NoError(t, db.InsertQuestion(ctx, "U2", "q", now))

	count, err := db.CountQuestionsSince(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 4, count)

	users, err := db.ActiveUsersSince(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, users)
}

func TestPruneBefore(t *testing.T) {
	t.Parallel()

	db := newTestLog(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, db.InsertQuestion(ctx, "U1", "old", now.Add(-30*24*time.Hour)))
	require.NoError(t, db.InsertQuestion(ctx, "U1", "new", now))

	pruned, err := db.PruneBefore(ctx, now.Add(-14*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), pruned)

	remaining, err := db.CountQuestionsSince(ctx, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 1, remaining)
}

func TestHashUserIDStable(t *testing.T) {
	t.Parallel()

	assert.Equal(t, HashUserID("U123"), HashUserID("U123"))
	assert.NotEqual(t, HashUserID("U123"), HashUserID("U124"))
	assert.Len(t, HashUserID("U123"), 16)
}

func TestReady(t *testing.T) {
	t.Parallel()

	db := newTestLog(t)
	assert.NoError(t, db.Ready(context.Background()))
	assert.Equal(t, ":memory:", db.Path())
}
