// Package history keeps a SQLite log of pack lifecycle events.
package history

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jinzhu/gorm"
	_ "github.com/jinzhu/gorm/dialects/sqlite"

	"github.com/wfassist/tailor/internal/domain"
)

// DefaultLimit caps List when no limit is given
const DefaultLimit = 100

// Event is the persisted form of a pack lifecycle event
type Event struct {
	ID        int64     `gorm:"primary_key;AUTO_INCREMENT" json:"id"`
	PackID    string    `gorm:"not null;index" json:"pack_id"`
	Action    string    `gorm:"not null;index" json:"action"`
	Version   string    `gorm:"default:''" json:"version"`
	Detail    string    `gorm:"type:text" json:"detail"`
	Success   bool      `gorm:"not null;default:false" json:"success"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

// TableName implements gorm's tabler
func (Event) TableName() string {
	return "pack_events"
}

// Filter narrows List
type Filter struct {
	PackID string
	Action string
	Limit  int
}

// Recorder writes and queries pack events
type Recorder struct {
	db  *gorm.DB
	now func() time.Time
}

// Open opens (creating if needed) the history database at path
func Open(path string) (*Recorder, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	db, err := gorm.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	db.LogMode(false)

	if err := db.AutoMigrate(&Event{}).Error; err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate history database: %w", err)
	}

	return &Recorder{db: db, now: time.Now}, nil
}

// Close closes the database
func (r *Recorder) Close() error {
	return r.db.Close()
}

// Record implements domain.EventRecorder
func (r *Recorder) Record(ctx context.Context, event domain.PackEvent) error {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = r.now()
	}
	row := Event{
		PackID:    event.PackID,
		Action:    event.Action,
		Version:   event.Version,
		Detail:    event.Detail,
		Success:   event.Success,
		CreatedAt: event.CreatedAt.UTC(),
	}
	if err := r.db.Create(&row).Error; err != nil {
		return fmt.Errorf("failed to record %s event for %s: %w", event.Action, event.PackID, err)
	}
	return nil
}

// List returns events newest first
func (r *Recorder) List(ctx context.Context, filter Filter) ([]domain.PackEvent, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	query := r.db.Model(&Event{})
	if filter.PackID != "" {
		query = query.Where("pack_id = ?", filter.PackID)
	}
	if filter.Action != "" {
		query = query.Where("action = ?", filter.Action)
	}

	var rows []Event
	if err := query.Order("created_at desc").Order("id desc").Limit(limit).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}

	events := make([]domain.PackEvent, 0, len(rows))
	for _, row := range rows {
		events = append(events, domain.PackEvent{
			PackID:    row.PackID,
			Action:    row.Action,
			Version:   row.Version,
			Detail:    row.Detail,
			Success:   row.Success,
			CreatedAt: row.CreatedAt,
		})
	}
	return events, nil
}

// Prune deletes events older than before and returns how many were removed
func (r *Recorder) Prune(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.Where("created_at < ?", before.UTC()).Delete(&Event{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to prune history: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// HealthCheck reports whether the database answers
func (r *Recorder) HealthCheck(ctx context.Context) domain.HealthStatus {
	status := domain.HealthStatus{
		Status:    domain.HealthStatusHealthy,
		Message:   "history database is operational",
		Timestamp: time.Now(),
	}
	if err := r.db.DB().PingContext(ctx); err != nil {
		status.Status = domain.HealthStatusDegraded
		status.Message = fmt.Sprintf("history database is unavailable: %v", err)
	}
	return status
}

// GetStats returns the number of recorded events
func (r *Recorder) GetStats(ctx context.Context) map[string]any {
	var count int
	r.db.Model(&Event{}).Count(&count)
	return map[string]any{"events": count}
}
