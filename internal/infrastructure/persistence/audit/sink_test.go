package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/clinicerp/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func testEntries(n int) []shared.AuditEntry {
	entries := make([]shared.AuditEntry, 0, n)
	for i := 0; i < n; i++ {
		entries = append(entries, shared.AuditEntry{
			ID:            uuid.New(),
			EntityType:    "Patient",
			EntityID:      uuid.NewString(),
			ActorID:       uuid.New(),
			ActorName:     "nurse",
			Action:        shared.AuditActionUpdate,
			OldValues:     map[string]any{"phone": "111"},
			NewValues:     map[string]any{"phone": "222"},
			ChangedFields: []string{"phone"},
			OccurredAt:    time.Date(2024, 6, 1, 10, 0, i, 0, time.UTC),
		})
	}
	return entries
}

func TestZapSink(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	sink := NewZapSink(zap.New(core))

	err := sink.Emit(context.Background(), testEntries(2))
	require.NoError(t, err)

	require.Equal(t, 2, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "audit entry", entry.Message)
	fields := entry.ContextMap()
	assert.Equal(t, "Patient", fields["entity_type"])
	assert.Equal(t, "UPDATE", fields["action"])
}

func TestGormSink(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&EntryModel{}))

	sink := NewGormSink(db)
	ctx := context.Background()

	t.Run("persists and reads back entries", func(t *testing.T) {
		entries := testEntries(3)
		entityID := uuid.NewString()
		for i := range entries {
			entries[i].EntityID = entityID
		}
		require.NoError(t, sink.Emit(ctx, entries))

		got, err := sink.FindByEntity(ctx, "Patient", entityID)
		require.NoError(t, err)
		require.Len(t, got, 3)

		// newest first
		assert.True(t, got[0].OccurredAt.After(got[1].OccurredAt))
		assert.Equal(t, shared.AuditActionUpdate, got[0].Action)
		assert.Equal(t, map[string]any{"phone": "222"}, got[0].NewValues)
		assert.Equal(t, []string{"phone"}, got[0].ChangedFields)
	})

	t.Run("empty emit is a no-op", func(t *testing.T) {
		require.NoError(t, sink.Emit(ctx, nil))
	})

	t.Run("unknown entity yields empty trail", func(t *testing.T) {
		got, err := sink.FindByEntity(ctx, "Patient", uuid.NewString())
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

type failingSink struct{}

func (failingSink) Emit(context.Context, []shared.AuditEntry) error {
	return errors.New("boom")
}

func TestFanoutSink(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)

	t.Run("delivers to all sinks", func(t *testing.T) {
		fanout := FanoutSink{NewZapSink(zap.New(core)), NewZapSink(zap.New(core))}
		require.NoError(t, fanout.Emit(context.Background(), testEntries(1)))
		assert.Equal(t, 2, logs.Len())
	})

	t.Run("returns the first failure", func(t *testing.T) {
		fanout := FanoutSink{failingSink{}, NewZapSink(zap.New(core))}
		err := fanout.Emit(context.Background(), testEntries(1))
		assert.EqualError(t, err, "boom")
	})
}
