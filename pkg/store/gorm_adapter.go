package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/theapemachine/a2a-coordinator/pkg/a2a"
)

// gormTaskRecord is the row shape tasks are persisted as. History, Artifacts,
// and Metadata are stored as JSON text rather than normalized tables — a2a.Task
// history and metadata are read/written whole, never queried by sub-field, so
// normalizing them would only add joins no caller needs.
type gormTaskRecord struct {
	ID            string `gorm:"type:text;primaryKey"`
	SessionID     string `gorm:"type:text;index"`
	Title         string `gorm:"type:text"`
	State         string `gorm:"type:text;index"`
	StatusJSON    string `gorm:"type:text;not null"`
	HistoryJSON   string `gorm:"type:text;not null;default:'[]'"`
	ArtifactsJSON string `gorm:"type:text;not null;default:'[]'"`
	MetadataJSON  string `gorm:"type:text;not null;default:'{}'"`
	CreatedAt     int64  `gorm:"not null"`
	UpdatedAt     int64  `gorm:"not null"`
}

func (gormTaskRecord) TableName() string { return "tasks" }

// GormAdapter is the durable Adapter implementation, backed by any database
// gorm.io/gorm supports — sqlite (modernc) or postgres via OpenDB.
type GormAdapter struct {
	db *gorm.DB
}

func NewGormAdapter(db *gorm.DB) *GormAdapter {
	return &GormAdapter{db: db}
}

func (g *GormAdapter) Upsert(ctx context.Context, task *a2a.Task) error {
	record, err := toRecord(task)
	if err != nil {
		return fmt.Errorf("store: encoding task %s: %w", task.ID, err)
	}

	return g.db.WithContext(ctx).Save(record).Error
}

func (g *GormAdapter) Get(ctx context.Context, id string) (*a2a.Task, error) {
	var record gormTaskRecord
	if err := g.db.WithContext(ctx).First(&record, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	task, err := fromRecord(&record)
	if err != nil {
		return nil, fmt.Errorf("store: decoding task %s: %w", id, err)
	}
	return task, nil
}

func (g *GormAdapter) List(ctx context.Context, filter Filter) ([]*a2a.Task, error) {
	query := g.db.WithContext(ctx).Model(&gormTaskRecord{})
	if filter.State != "" {
		query = query.Where("state = ?", string(filter.State))
	}
	if filter.SessionID != "" {
		query = query.Where("session_id = ?", filter.SessionID)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var records []gormTaskRecord
	if err := query.Order("created_at asc").Find(&records).Error; err != nil {
		return nil, err
	}

	out := make([]*a2a.Task, 0, len(records))
	for i := range records {
		task, err := fromRecord(&records[i])
		if err != nil {
			return nil, fmt.Errorf("store: decoding task %s: %w", records[i].ID, err)
		}
		out = append(out, task)
	}
	return out, nil
}

func (g *GormAdapter) Delete(ctx context.Context, id string) error {
	res := g.db.WithContext(ctx).Delete(&gormTaskRecord{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func toRecord(task *a2a.Task) (*gormTaskRecord, error) {
	statusJSON, err := json.Marshal(task.Status)
	if err != nil {
		return nil, err
	}
	historyJSON, err := json.Marshal(task.History)
	if err != nil {
		return nil, err
	}
	artifactsJSON, err := json.Marshal(task.Artifacts)
	if err != nil {
		return nil, err
	}
	metadataJSON, err := json.Marshal(task.Metadata)
	if err != nil {
		return nil, err
	}

	return &gormTaskRecord{
		ID:            task.ID,
		SessionID:     task.SessionID,
		Title:         task.Title,
		State:         string(task.Status.State),
		StatusJSON:    string(statusJSON),
		HistoryJSON:   string(historyJSON),
		ArtifactsJSON: string(artifactsJSON),
		MetadataJSON:  string(metadataJSON),
		CreatedAt:     task.CreatedAt.UnixNano(),
		UpdatedAt:     task.UpdatedAt.UnixNano(),
	}, nil
}

func fromRecord(record *gormTaskRecord) (*a2a.Task, error) {
	task := &a2a.Task{
		ID:        record.ID,
		SessionID: record.SessionID,
		Title:     record.Title,
	}

	if err := json.Unmarshal([]byte(record.StatusJSON), &task.Status); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(record.HistoryJSON), &task.History); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(record.ArtifactsJSON), &task.Artifacts); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(record.MetadataJSON), &task.Metadata); err != nil {
		return nil, err
	}

	task.CreatedAt = unixNanoToTime(record.CreatedAt)
	task.UpdatedAt = unixNanoToTime(record.UpdatedAt)
	return task, nil
}

func unixNanoToTime(ns int64) time.Time {
	return time.Unix(0, ns).UTC()
}
