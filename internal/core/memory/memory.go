// Package memory keeps the bounded, expiring turn history the agent sends to
// the completion provider.
package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/MuhamadAgungGumelar/micro-system-omnichannel-hub/internal/core/llm"
)

// Turn is one stored message of a conversation's agent memory.
type Turn struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey"`
	TenantID       string    `gorm:"type:uuid;not null;index:idx_memory_conversation,priority:1"`
	ConversationID string    `gorm:"type:uuid;not null;index:idx_memory_conversation,priority:2"`
	Role           llm.Role  `gorm:"type:varchar(16);not null"`
	Content        string    `gorm:"type:text;not null"`
	Seq            int64     `gorm:"not null;index:idx_memory_conversation,priority:3"`
	CreatedAt      time.Time `gorm:"index"`
}

func (Turn) TableName() string {
	return "agent_memory_turns"
}

func (t *Turn) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

// Config bounds the memory of one conversation.
type Config struct {
	MaxTurns int
	TTL      time.Duration
}

// Store is the gorm-backed conversation memory.
type Store struct {
	db  *gorm.DB
	cfg Config
	now func() time.Time
}

func NewStore(db *gorm.DB, cfg Config) *Store {
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = 15
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	return &Store{db: db, cfg: cfg, now: func() time.Time { return time.Now().UTC() }}
}

// Append stores a turn and trims the conversation to the newest MaxTurns.
func (s *Store) Append(ctx context.Context, tenantID, conversationID string, role llm.Role, content string) error {
	now := s.now()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		turn := &Turn{
			TenantID:       tenantID,
			ConversationID: conversationID,
			Role:           role,
			Content:        content,
			Seq:            now.UnixNano(),
			CreatedAt:      now,
		}
		// keep Seq strictly increasing when the clock does not move
		var last Turn
		err := tx.Where("tenant_id = ? AND conversation_id = ?", tenantID, conversationID).
			Order("seq DESC").Limit(1).Find(&last).Error
		if err != nil {
			return err
		}
		if last.ID != uuid.Nil && turn.Seq <= last.Seq {
			turn.Seq = last.Seq + 1
		}
		if err := tx.Create(turn).Error; err != nil {
			return fmt.Errorf("failed to append memory turn: %w", err)
		}

		var keep []int64
		err = tx.Model(&Turn{}).
			Where("tenant_id = ? AND conversation_id = ?", tenantID, conversationID).
			Order("seq DESC").Limit(s.cfg.MaxTurns).
			Pluck("seq", &keep).Error
		if err != nil {
			return err
		}
		if len(keep) < s.cfg.MaxTurns {
			return nil
		}
		oldest := keep[len(keep)-1]
		return tx.Where("tenant_id = ? AND conversation_id = ? AND seq < ?", tenantID, conversationID, oldest).
			Delete(&Turn{}).Error
	})
}

// History returns the unexpired turns of a conversation, oldest first.
func (s *Store) History(ctx context.Context, tenantID, conversationID string) ([]llm.Turn, error) {
	var rows []Turn
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND conversation_id = ? AND created_at > ?", tenantID, conversationID, s.now().Add(-s.cfg.TTL)).
		Order("seq DESC").Limit(s.cfg.MaxTurns).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load memory: %w", err)
	}

	history := make([]llm.Turn, len(rows))
	for i, r := range rows {
		history[len(rows)-1-i] = llm.Turn{Role: r.Role, Content: r.Content}
	}
	return history, nil
}

// Clear forgets everything about a conversation.
func (s *Store) Clear(ctx context.Context, tenantID, conversationID string) error {
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND conversation_id = ?", tenantID, conversationID).
		Delete(&Turn{}).Error
	if err != nil {
		return fmt.Errorf("failed to clear memory: %w", err)
	}
	return nil
}

// PurgeExpired deletes turns older than the TTL across all conversations.
func (s *Store) PurgeExpired(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).Where("created_at <= ?", s.now().Add(-s.cfg.TTL)).Delete(&Turn{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to purge memory: %w", res.Error)
	}
	return res.RowsAffected, nil
}
