// Package history persists processed requests for audit and conversation
// replay. Recording is best effort: a storage failure never affects the
// reply returned to the caller.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/transitmesh/dispatch/orchestrator"
)

// Record is one processed request.
type Record struct {
	ID             uint      `gorm:"primaryKey"`
	ConversationID string    `gorm:"index;size:128"`
	Query          string    `gorm:"type:text"`
	Response       string    `gorm:"type:text"`
	Intent         string    `gorm:"size:64"`
	Confidence     float64   ``
	MatchedAgents  string    `gorm:"type:text"`
	AgentsCalled   string    `gorm:"type:text"`
	PartialFailure bool      ``
	CreatedAt      time.Time `gorm:"index"`
}

// TableName fixes the table name independent of gorm pluralization rules.
func (Record) TableName() string { return "request_history" }

// StoreConfig configures the history store.
type StoreConfig struct {
	// Driver selects the backend: sqlite or postgres.
	Driver string
	// DSN is the connection string (file path for sqlite).
	DSN string
}

// Store writes and reads request history through gorm.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

var _ orchestrator.Recorder = (*Store)(nil)

// NewStore opens the database, runs migrations, and returns the store.
func NewStore(config StoreConfig, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var dialector gorm.Dialector
	switch config.Driver {
	case "sqlite":
		dialector = sqlite.Open(config.DSN)
	case "postgres":
		dialector = postgres.Open(config.DSN)
	default:
		return nil, fmt.Errorf("history: unsupported driver %q (supported: sqlite, postgres)", config.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("history: open database: %w", err)
	}
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("history: migrate: %w", err)
	}

	return &Store{
		db:     db,
		logger: logger.With(zap.String("component", "history")),
	}, nil
}

// Record persists one processed request.
func (s *Store) Record(ctx context.Context, conversationID, query string, reply *orchestrator.Reply) error {
	rec := Record{
		ConversationID: conversationID,
		Query:          query,
		Response:       reply.Response,
		Intent:         reply.Intent,
		Confidence:     reply.Confidence,
		MatchedAgents:  strings.Join(reply.MatchedAgents, ","),
		AgentsCalled:   joinJSON(reply.AgentsCalled),
		PartialFailure: reply.Metadata.PartialFailure,
		CreatedAt:      time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("history: record: %w", err)
	}
	return nil
}

// Conversation returns the records of one conversation, oldest first,
// capped at limit (0 means no cap).
func (s *Store) Conversation(ctx context.Context, conversationID string, limit int) ([]Record, error) {
	var recs []Record
	q := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at asc, id asc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("history: conversation %s: %w", conversationID, err)
	}
	return recs, nil
}

// Close releases the underlying database connections.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// joinJSON keeps annotated labels intact even when they contain commas.
func joinJSON(labels []string) string {
	data, err := json.Marshal(labels)
	if err != nil {
		return ""
	}
	return string(data)
}
