package db

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/example/kanrigate/internal/config"
	"github.com/example/kanrigate/internal/k8s"
	"github.com/example/kanrigate/internal/logging"
	"github.com/example/kanrigate/internal/models"
)

const (
	defaultListLimit  = 100
	auditWriteTimeout = 3 * time.Second
)

// InitPostgres opens the audit database.
func InitPostgres(cfg *config.Config) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres at %s:%s: %w", cfg.DBHost, cfg.DBPort, err)
	}
	return db, nil
}

// AutoMigrate creates or updates the audit tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&models.AuditEvent{})
}

// Close releases the connection pool.
func Close(db *gorm.DB) {
	if db == nil {
		return
	}
	sqlDB, err := db.DB()
	if err == nil {
		_ = sqlDB.Close()
	}
}

// AuditStore persists cluster mutations. It implements k8s.Auditor.
type AuditStore struct {
	db           *gorm.DB
	logger       *slog.Logger
	writeTimeout time.Duration
}

var _ k8s.Auditor = (*AuditStore)(nil)

// NewAuditStore returns a store writing to db.
func NewAuditStore(db *gorm.DB, logger *slog.Logger) *AuditStore {
	if logger == nil {
		logger = logging.Discard()
	}
	return &AuditStore{db: db, logger: logger, writeTimeout: auditWriteTimeout}
}

// Record stores entry. Storage failures are logged and never reach the
// caller: the cluster mutation already happened. The write outlives a
// cancelled request but is bounded by writeTimeout.
func (s *AuditStore) Record(ctx context.Context, entry k8s.AuditEntry) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.writeTimeout)
	defer cancel()

	ev := NewAuditEvent(entry)
	if err := s.db.WithContext(ctx).Create(&ev).Error; err != nil {
		s.logger.Error("failed to store audit event",
			logging.Operation(entry.Operation),
			logging.ResourceName(entry.Name),
			logging.Err(err))
	}
}

// List returns the most recent events, newest first. An empty username
// returns events for every user.
func (s *AuditStore) List(ctx context.Context, username string, limit int) ([]models.AuditEvent, error) {
	if limit <= 0 || limit > defaultListLimit {
		limit = defaultListLimit
	}
	q := s.db.WithContext(ctx).Order("created_at desc").Limit(limit)
	if username != "" {
		q = q.Where("username = ?", username)
	}
	var events []models.AuditEvent
	if err := q.Find(&events).Error; err != nil {
		return nil, fmt.Errorf("failed to list audit events: %w", err)
	}
	return events, nil
}

// NewAuditEvent converts an audit entry to its stored form.
func NewAuditEvent(entry k8s.AuditEntry) models.AuditEvent {
	ev := models.AuditEvent{
		Actor:      entry.Actor,
		Operation:  entry.Operation,
		Resource:   entry.Resource,
		Name:       entry.Name,
		Username:   entry.Username,
		Namespace:  entry.Namespace,
		Permission: entry.Permission,
		Success:    entry.Err == nil,
	}
	if entry.Err != nil {
		ev.Error = entry.Err.Error()
	}
	return ev
}
