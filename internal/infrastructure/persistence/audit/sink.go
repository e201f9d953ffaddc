package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/clinicerp/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ZapSink writes audit entries to the structured log
type ZapSink struct {
	log *zap.Logger
}

// NewZapSink creates a log-backed sink
func NewZapSink(log *zap.Logger) *ZapSink {
	return &ZapSink{log: log}
}

// Emit implements shared.AuditSink
func (s *ZapSink) Emit(_ context.Context, entries []shared.AuditEntry) error {
	for _, e := range entries {
		s.log.Info("audit entry",
			zap.String("entity_type", e.EntityType),
			zap.String("entity_id", e.EntityID),
			zap.String("action", string(e.Action)),
			zap.String("actor_id", e.ActorID.String()),
			zap.Strings("changed_fields", e.ChangedFields),
			zap.Time("occurred_at", e.OccurredAt),
		)
	}
	return nil
}

// EntryModel is the persisted form of an audit entry. Value maps are stored
// as JSON documents.
type EntryModel struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey"`
	EntityType    string    `gorm:"size:64;not null;index:idx_audit_entity"`
	EntityID      string    `gorm:"size:64;not null;index:idx_audit_entity"`
	ActorID       uuid.UUID `gorm:"type:uuid;index"`
	ActorName     string    `gorm:"size:128"`
	Action        string    `gorm:"size:16;not null"`
	OldValues     string    `gorm:"type:text"`
	NewValues     string    `gorm:"type:text"`
	ChangedFields string    `gorm:"type:text"`
	OccurredAt    time.Time `gorm:"not null;index"`
}

// TableName returns the table name for GORM
func (EntryModel) TableName() string {
	return "audit_entries"
}

// GormSink persists audit entries to the audit_entries table
type GormSink struct {
	db *gorm.DB
}

// NewGormSink creates a database-backed sink
func NewGormSink(db *gorm.DB) *GormSink {
	return &GormSink{db: db}
}

// Emit implements shared.AuditSink
func (s *GormSink) Emit(ctx context.Context, entries []shared.AuditEntry) error {
	if len(entries) == 0 {
		return nil
	}
	models := make([]EntryModel, 0, len(entries))
	for _, e := range entries {
		m, err := toModel(e)
		if err != nil {
			return err
		}
		models = append(models, m)
	}
	return s.db.WithContext(ctx).Create(&models).Error
}

// FindByEntity returns the stored audit trail of one entity, newest first
func (s *GormSink) FindByEntity(ctx context.Context, entityType, entityID string) ([]shared.AuditEntry, error) {
	var models []EntryModel
	err := s.db.WithContext(ctx).
		Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Order("occurred_at DESC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	entries := make([]shared.AuditEntry, 0, len(models))
	for _, m := range models {
		e, err := fromModel(m)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func toModel(e shared.AuditEntry) (EntryModel, error) {
	oldValues, err := json.Marshal(e.OldValues)
	if err != nil {
		return EntryModel{}, fmt.Errorf("marshal old values: %w", err)
	}
	newValues, err := json.Marshal(e.NewValues)
	if err != nil {
		return EntryModel{}, fmt.Errorf("marshal new values: %w", err)
	}
	changed, err := json.Marshal(e.ChangedFields)
	if err != nil {
		return EntryModel{}, fmt.Errorf("marshal changed fields: %w", err)
	}
	return EntryModel{
		ID:            e.ID,
		EntityType:    e.EntityType,
		EntityID:      e.EntityID,
		ActorID:       e.ActorID,
		ActorName:     e.ActorName,
		Action:        string(e.Action),
		OldValues:     string(oldValues),
		NewValues:     string(newValues),
		ChangedFields: string(changed),
		OccurredAt:    e.OccurredAt,
	}, nil
}

func fromModel(m EntryModel) (shared.AuditEntry, error) {
	e := shared.AuditEntry{
		ID:         m.ID,
		EntityType: m.EntityType,
		EntityID:   m.EntityID,
		ActorID:    m.ActorID,
		ActorName:  m.ActorName,
		Action:     shared.AuditAction(m.Action),
		OccurredAt: m.OccurredAt,
	}
	if err := json.Unmarshal([]byte(m.OldValues), &e.OldValues); err != nil {
		return e, fmt.Errorf("unmarshal old values: %w", err)
	}
	if err := json.Unmarshal([]byte(m.NewValues), &e.NewValues); err != nil {
		return e, fmt.Errorf("unmarshal new values: %w", err)
	}
	if err := json.Unmarshal([]byte(m.ChangedFields), &e.ChangedFields); err != nil {
		return e, fmt.Errorf("unmarshal changed fields: %w", err)
	}
	return e, nil
}

// RedisSink publishes audit entries to a redis stream for downstream
// consumers (SIEM forwarders, notification workers).
type RedisSink struct {
	client *redis.Client
	stream string
}

// NewRedisSink creates a redis-stream-backed sink
func NewRedisSink(client *redis.Client, stream string) *RedisSink {
	return &RedisSink{client: client, stream: stream}
}

// Emit implements shared.AuditSink
func (s *RedisSink) Emit(ctx context.Context, entries []shared.AuditEntry) error {
	pipe := s.client.Pipeline()
	for _, e := range entries {
		payload, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal audit entry: %w", err)
		}
		pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: s.stream,
			Values: map[string]any{
				"entity_type": e.EntityType,
				"entity_id":   e.EntityID,
				"action":      string(e.Action),
				"entry":       payload,
			},
		})
	}
	_, err := pipe.Exec(ctx)
	return err
}

// FanoutSink delivers entries to every configured sink. The first failure
// is returned; earlier sinks keep what they already received.
type FanoutSink []shared.AuditSink

// Emit implements shared.AuditSink
func (s FanoutSink) Emit(ctx context.Context, entries []shared.AuditEntry) error {
	for _, sink := range s {
		if err := sink.Emit(ctx, entries); err != nil {
			return err
		}
	}
	return nil
}
