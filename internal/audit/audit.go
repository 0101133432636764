package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"ms-checkin/internal/logger"
	"ms-checkin/internal/models"
)

// Store persists audit entries.
type Store interface {
	InsertAuditLog(ctx context.Context, entry *models.AuditLog) error
}

type DB struct {
	Bun *bun.DB
}

func (d *DB) InsertAuditLog(ctx context.Context, entry *models.AuditLog) error {
	_, err := d.Bun.NewInsert().Model(entry).Exec(ctx)
	return err
}

// QueryAuditLogs returns audit entries, newest first, optionally filtered
// by entity type and id.
func (d *DB) QueryAuditLogs(ctx context.Context, entityType, entityID string, limit, offset int) ([]models.AuditLog, error) {
	var entries []models.AuditLog
	q := d.Bun.NewSelect().Model(&entries)
	if entityType != "" {
		q = q.Where("entity_type = ?", entityType)
	}
	if entityID != "" {
		q = q.Where("entity_id = ?", entityID)
	}
	err := q.Order("created_at DESC").Limit(limit).Offset(offset).Scan(ctx)
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Recorder writes audit entries through a buffered channel and a single
// background worker. Record never blocks the caller: if the buffer is full
// the entry is dropped and a warning logged. An audit write failure is
// logged and never propagated, so the primary mutation is unaffected.
type Recorder struct {
	store   Store
	logger  *logger.Logger
	entries chan models.AuditLog
	wg      sync.WaitGroup
}

func NewRecorder(store Store, log *logger.Logger) *Recorder {
	r := &Recorder{
		store:   store,
		logger:  log,
		entries: make(chan models.AuditLog, 256),
	}
	r.wg.Add(1)
	go r.worker()
	return r
}

// Record enqueues one audit entry. detail is marshalled to JSON; a nil map
// leaves the detail column empty.
func (r *Recorder) Record(actor, action, entityType, entityID string, detail map[string]interface{}) {
	entry := models.AuditLog{
		ID:         uuid.NewString(),
		Actor:      actor,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		CreatedAt:  time.Now().UTC(),
	}
	if detail != nil {
		if b, err := json.Marshal(detail); err == nil {
			entry.Detail = string(b)
		}
	}

	select {
	case r.entries <- entry:
	default:
		r.logger.Warn("AUDIT", fmt.Sprintf("buffer full, dropping entry %s for %s/%s", action, entityType, entityID))
	}
}

func (r *Recorder) worker() {
	defer r.wg.Done()
	for entry := range r.entries {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := r.store.InsertAuditLog(ctx, &entry); err != nil {
			r.logger.Error("AUDIT", fmt.Sprintf("failed to write entry %s for %s/%s: %v",
				entry.Action, entry.EntityType, entry.EntityID, err))
		}
		cancel()
	}
}

// Close drains pending entries and stops the worker.
func (r *Recorder) Close() {
	close(r.entries)
	r.wg.Wait()
}
