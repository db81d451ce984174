package db

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/alexbalandi/chatwoot-dify/config"
	"github.com/alexbalandi/chatwoot-dify/models"

	"github.com/jinzhu/gorm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	var conf config.Configuration
	conf.Database = "sqlite3"
	conf.DbPath = filepath.Join(t.TempDir(), "test.db")
	conf.AutoMigrate = true

	gdb, err := Connect(conf, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { gdb.Close() })
	return gdb
}

func int64p(v int64) *int64 { return &v }

func TestUpsertIsIdempotent(t *testing.T) {
	gdb := openTestDB(t)
	store := NewDialogueStore(gdb)
	ctx := context.Background()

	first, err := store.Upsert(ctx, models.DialogueUpsert{ChatwootConversationID: "42", Status: "pending", AssigneeID: int64p(3)})
	require.NoError(t, err)

	second, err := store.Upsert(ctx, models.DialogueUpsert{ChatwootConversationID: "42", Status: "open", AssigneeID: nil})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	var count int
	require.NoError(t, gdb.Model(&models.Dialogue{}).Where("chatwoot_conversation_id = ?", "42").Count(&count).Error)
	assert.Equal(t, 1, count)

	got, err := store.FindByChatwootID(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, "open", got.Status)
	assert.Nil(t, got.AssigneeID)
	assert.False(t, got.HasDifyConversation())
}

func TestUpsertDefaultsStatus(t *testing.T) {
	store := NewDialogueStore(openTestDB(t))
	d, err := store.Upsert(context.Background(), models.DialogueUpsert{ChatwootConversationID: "1"})
	require.NoError(t, err)
	assert.Equal(t, models.DIALOGUE_STATUS_PENDING, d.Status)
	assert.NotEmpty(t, d.ID)

	_, err = store.Upsert(context.Background(), models.DialogueUpsert{})
	assert.Error(t, err)
}

func TestConcurrentUpsertKeepsOneRow(t *testing.T) {
	gdb := openTestDB(t)
	store := NewDialogueStore(gdb)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Upsert(context.Background(), models.DialogueUpsert{ChatwootConversationID: "77", Status: "open"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	var count int
	require.NoError(t, gdb.Model(&models.Dialogue{}).Count(&count).Error)
	assert.Equal(t, 1, count)
}

func TestSetDifyConversationIDIsWriteOnce(t *testing.T) {
	store := NewDialogueStore(openTestDB(t))
	ctx := context.Background()
	_, err := store.Upsert(ctx, models.DialogueUpsert{ChatwootConversationID: "9", Status: "open"})
	require.NoError(t, err)

	written, err := store.SetDifyConversationID(ctx, "9", "A1")
	require.NoError(t, err)
	assert.True(t, written)

	written, err = store.SetDifyConversationID(ctx, "9", "A2")
	require.NoError(t, err)
	assert.False(t, written)

	d, err := store.FindByChatwootID(ctx, "9")
	require.NoError(t, err)
	assert.Equal(t, "A1", d.DifyConversation())

	byDify, err := store.FindByDifyID(ctx, "A1")
	require.NoError(t, err)
	assert.Equal(t, d.ID, byDify.ID)

	// a later upsert must not clear the binding
	_, err = store.Upsert(ctx, models.DialogueUpsert{ChatwootConversationID: "9", Status: "resolved"})
	require.NoError(t, err)
	d, err = store.FindByChatwootID(ctx, "9")
	require.NoError(t, err)
	assert.Equal(t, "A1", d.DifyConversation())
	assert.Equal(t, "resolved", d.Status)
}

func TestDeleteAndNotFound(t *testing.T) {
	store := NewDialogueStore(openTestDB(t))
	ctx := context.Background()

	_, err := store.FindByChatwootID(ctx, "missing")
	assert.ErrorIs(t, err, ErrDialogueNotFound)
	_, err = store.FindByDifyID(ctx, "")
	assert.ErrorIs(t, err, ErrDialogueNotFound)

	d, err := store.Upsert(ctx, models.DialogueUpsert{ChatwootConversationID: "5"})
	require.NoError(t, err)
	require.NoError(t, store.Delete(ctx, d))

	_, err = store.FindByChatwootID(ctx, "5")
	assert.ErrorIs(t, err, ErrDialogueNotFound)
	assert.Error(t, store.Delete(ctx, &models.Dialogue{}))
	assert.NoError(t, store.Ping(ctx))
}
