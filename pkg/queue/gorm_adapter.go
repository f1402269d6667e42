package queue

// GormAdapter is the durable counterpart to MemoryAdapter, backed by any
// database gorm.io/gorm supports (sqlite or postgres, via pkg/store.OpenDB).
// It follows pkg/store's GormAdapter: flat columns for fields queried or
// indexed on, a JSON blob for the one free-form map (Metadata), full-record
// Save for updates rather than struct-based Updates (which silently skips
// zero values), and a row-level conditional UPDATE inside a transaction
// wherever MemoryAdapter relies on holding its mutex across a
// read-check-write sequence.

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// gormCodebaseRecord is the row shape Codebase is persisted as.
type gormCodebaseRecord struct {
	ID             string `gorm:"type:text;primaryKey"`
	Name           string `gorm:"type:text"`
	Path           string `gorm:"type:text"`
	Status         string `gorm:"type:text;index"`
	WorkerID       string `gorm:"type:text;index"`
	SessionID      string `gorm:"type:text"`
	WatchMode      bool   `gorm:"not null;default:false"`
	WatchIntervalS int    `gorm:"not null;default:0"`
	ErrorCause     string `gorm:"type:text"`
	Description    string `gorm:"type:text"`
	DefaultBranch  string `gorm:"type:text"`
	CreatedAt      int64  `gorm:"not null;index"`
	UpdatedAt      int64  `gorm:"not null"`
}

func (gormCodebaseRecord) TableName() string { return "codebases" }

// gormAgentTaskRecord is the row shape AgentTask is persisted as.
type gormAgentTaskRecord struct {
	ID           string `gorm:"type:text;primaryKey"`
	CodebaseID   string `gorm:"type:text;index"`
	Title        string `gorm:"type:text"`
	Prompt       string `gorm:"type:text"`
	AgentType    string `gorm:"type:text"`
	Status       string `gorm:"type:text;index"`
	Priority     int    `gorm:"not null;default:0;index"`
	WorkerID     string `gorm:"type:text;index"`
	SessionID    string `gorm:"type:text"`
	MetadataJSON string `gorm:"type:text;not null;default:'{}'"`
	Result       string `gorm:"type:text"`
	Error        string `gorm:"type:text"`
	CreatedAt    int64  `gorm:"not null;index"`
	UpdatedAt    int64  `gorm:"not null"`
	StartedAt    *int64
	CompletedAt  *int64
}

func (gormAgentTaskRecord) TableName() string { return "agent_tasks" }

// GormAdapter implements Adapter against a shared *gorm.DB, typically the
// same connection pkg/store's task GormAdapter uses (see cmd.newQueueStore).
type GormAdapter struct {
	db *gorm.DB
}

func NewGormAdapter(db *gorm.DB) *GormAdapter {
	return &GormAdapter{db: db}
}

func toCodebaseRecord(cb *Codebase) *gormCodebaseRecord {
	return &gormCodebaseRecord{
		ID:             cb.ID,
		Name:           cb.Name,
		Path:           cb.Path,
		Status:         string(cb.Status),
		WorkerID:       cb.WorkerID,
		SessionID:      cb.SessionID,
		WatchMode:      cb.WatchMode,
		WatchIntervalS: cb.WatchIntervalS,
		ErrorCause:     cb.ErrorCause,
		Description:    cb.Description,
		DefaultBranch:  cb.DefaultBranch,
		CreatedAt:      cb.CreatedAt.UnixNano(),
		UpdatedAt:      cb.UpdatedAt.UnixNano(),
	}
}

func fromCodebaseRecord(r *gormCodebaseRecord) *Codebase {
	return &Codebase{
		ID:             r.ID,
		Name:           r.Name,
		Path:           r.Path,
		Status:         CodebaseStatus(r.Status),
		WorkerID:       r.WorkerID,
		SessionID:      r.SessionID,
		WatchMode:      r.WatchMode,
		WatchIntervalS: r.WatchIntervalS,
		ErrorCause:     r.ErrorCause,
		Description:    r.Description,
		DefaultBranch:  r.DefaultBranch,
		CreatedAt:      unixNanoToTime(r.CreatedAt),
		UpdatedAt:      unixNanoToTime(r.UpdatedAt),
	}
}

func (g *GormAdapter) CreateCodebase(ctx context.Context, cb *Codebase) error {
	if cb.ID == "" {
		cb.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	cb.CreatedAt, cb.UpdatedAt = now, now
	if cb.Status == "" {
		cb.Status = CodebaseIdle
	}
	return g.db.WithContext(ctx).Create(toCodebaseRecord(cb)).Error
}

func (g *GormAdapter) GetCodebase(ctx context.Context, id string) (*Codebase, error) {
	var record gormCodebaseRecord
	if err := g.db.WithContext(ctx).First(&record, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCodebaseNotFound
		}
		return nil, err
	}
	return fromCodebaseRecord(&record), nil
}

func (g *GormAdapter) UpdateCodebase(ctx context.Context, cb *Codebase) error {
	var existing gormCodebaseRecord
	if err := g.db.WithContext(ctx).First(&existing, "id = ?", cb.ID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrCodebaseNotFound
		}
		return err
	}

	cb.UpdatedAt = time.Now().UTC()
	record := toCodebaseRecord(cb)
	record.CreatedAt = existing.CreatedAt
	return g.db.WithContext(ctx).Save(record).Error
}

func (g *GormAdapter) ListCodebases(ctx context.Context) ([]*Codebase, error) {
	var records []gormCodebaseRecord
	if err := g.db.WithContext(ctx).Order("created_at asc").Find(&records).Error; err != nil {
		return nil, err
	}
	out := make([]*Codebase, 0, len(records))
	for i := range records {
		out = append(out, fromCodebaseRecord(&records[i]))
	}
	return out, nil
}

func toAgentTaskRecord(t *AgentTask) (*gormAgentTaskRecord, error) {
	metadataJSON := "{}"
	if t.Metadata != nil {
		raw, err := json.Marshal(t.Metadata)
		if err != nil {
			return nil, err
		}
		metadataJSON = string(raw)
	}

	record := &gormAgentTaskRecord{
		ID:           t.ID,
		CodebaseID:   t.CodebaseID,
		Title:        t.Title,
		Prompt:       t.Prompt,
		AgentType:    t.AgentType,
		Status:       string(t.Status),
		Priority:     t.Priority,
		WorkerID:     t.WorkerID,
		SessionID:    t.SessionID,
		MetadataJSON: metadataJSON,
		Result:       t.Result,
		Error:        t.Error,
		CreatedAt:    t.CreatedAt.UnixNano(),
		UpdatedAt:    t.UpdatedAt.UnixNano(),
	}
	if t.StartedAt != nil {
		ns := t.StartedAt.UnixNano()
		record.StartedAt = &ns
	}
	if t.CompletedAt != nil {
		ns := t.CompletedAt.UnixNano()
		record.CompletedAt = &ns
	}
	return record, nil
}

func fromAgentTaskRecord(r *gormAgentTaskRecord) (*AgentTask, error) {
	task := &AgentTask{
		ID:         r.ID,
		CodebaseID: r.CodebaseID,
		Title:      r.Title,
		Prompt:     r.Prompt,
		AgentType:  r.AgentType,
		Status:     AgentTaskState(r.Status),
		Priority:   r.Priority,
		WorkerID:   r.WorkerID,
		SessionID:  r.SessionID,
		Result:     r.Result,
		Error:      r.Error,
		CreatedAt:  unixNanoToTime(r.CreatedAt),
		UpdatedAt:  unixNanoToTime(r.UpdatedAt),
	}
	if r.MetadataJSON != "" && r.MetadataJSON != "{}" {
		if err := json.Unmarshal([]byte(r.MetadataJSON), &task.Metadata); err != nil {
			return nil, err
		}
	}
	if r.StartedAt != nil {
		started := unixNanoToTime(*r.StartedAt)
		task.StartedAt = &started
	}
	if r.CompletedAt != nil {
		completed := unixNanoToTime(*r.CompletedAt)
		task.CompletedAt = &completed
	}
	return task, nil
}

func unixNanoToTime(ns int64) time.Time {
	return time.Unix(0, ns).UTC()
}

func (g *GormAdapter) CreateTask(ctx context.Context, t *AgentTask) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	t.CreatedAt, t.UpdatedAt = now, now
	if t.Status == "" {
		t.Status = AgentTaskPending
	}

	record, err := toAgentTaskRecord(t)
	if err != nil {
		return fmt.Errorf("queue: encoding task %s: %w", t.ID, err)
	}
	return g.db.WithContext(ctx).Create(record).Error
}

func (g *GormAdapter) GetTask(ctx context.Context, id string) (*AgentTask, error) {
	var record gormAgentTaskRecord
	if err := g.db.WithContext(ctx).First(&record, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, err
	}

	task, err := fromAgentTaskRecord(&record)
	if err != nil {
		return nil, fmt.Errorf("queue: decoding task %s: %w", id, err)
	}
	return task, nil
}

// codebasesForWorker returns a subquery selecting ids of codebases bound to
// workerID, the same predicate MemoryAdapter.codebasesForWorker computes in
// memory.
func (g *GormAdapter) codebasesForWorker(workerID string) *gorm.DB {
	return g.db.Model(&gormCodebaseRecord{}).Select("id").Where("worker_id = ?", workerID)
}

func (g *GormAdapter) ListClaimable(ctx context.Context, workerID string) ([]*AgentTask, error) {
	var records []gormAgentTaskRecord
	err := g.db.WithContext(ctx).
		Where("status = ?", string(AgentTaskPending)).
		Where("codebase_id IN (?)", g.codebasesForWorker(workerID)).
		Order("priority DESC, created_at ASC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}

	out := make([]*AgentTask, 0, len(records))
	for i := range records {
		task, err := fromAgentTaskRecord(&records[i])
		if err != nil {
			return nil, fmt.Errorf("queue: decoding task %s: %w", records[i].ID, err)
		}
		out = append(out, task)
	}
	return out, nil
}

// ClaimNext picks the highest-priority pending candidate, then performs a
// conditional UPDATE ... WHERE status='pending' inside a transaction; the
// database's row lock is what makes this linearize against concurrent
// claimers, the SQL equivalent of MemoryAdapter holding its mutex across the
// same read-check-write sequence.
func (g *GormAdapter) ClaimNext(ctx context.Context, workerID string) (*AgentTask, error) {
	var claimed *AgentTask
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var record gormAgentTaskRecord
		err := tx.
			Where("status = ?", string(AgentTaskPending)).
			Where("codebase_id IN (?)", tx.Model(&gormCodebaseRecord{}).Select("id").Where("worker_id = ?", workerID)).
			Order("priority DESC, created_at ASC").
			First(&record).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNoClaimableTask
			}
			return err
		}

		now := time.Now().UTC()
		res := tx.Model(&gormAgentTaskRecord{}).
			Where("id = ? AND status = ?", record.ID, string(AgentTaskPending)).
			Updates(map[string]any{
				"status":     string(AgentTaskRunning),
				"worker_id":  workerID,
				"started_at": now.UnixNano(),
				"updated_at": now.UnixNano(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrClaimConflict
		}

		if err := tx.First(&record, "id = ?", record.ID).Error; err != nil {
			return err
		}
		claimed, err = fromAgentTaskRecord(&record)
		return err
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (g *GormAdapter) UpdateStatus(ctx context.Context, id, workerID string, next AgentTaskState, result, errMsg string) (*AgentTask, error) {
	var updated *AgentTask
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var record gormAgentTaskRecord
		if err := tx.First(&record, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrTaskNotFound
			}
			return err
		}

		current := AgentTaskState(record.Status)
		if record.WorkerID != "" && record.WorkerID != workerID && !current.Terminal() {
			return ErrClaimConflict
		}
		if !current.CanTransitionTo(next) {
			return ErrInvalidTransition
		}

		now := time.Now().UTC()
		updates := map[string]any{
			"status":     string(next),
			"worker_id":  workerID,
			"updated_at": now.UnixNano(),
		}
		if next.Terminal() {
			updates["result"] = result
			updates["error"] = errMsg
			updates["completed_at"] = now.UnixNano()
		}

		res := tx.Model(&gormAgentTaskRecord{}).Where("id = ? AND status = ?", id, record.Status).Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrClaimConflict
		}
		if err := tx.First(&record, "id = ?", id).Error; err != nil {
			return err
		}

		var err error
		updated, err = fromAgentTaskRecord(&record)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (g *GormAdapter) CancelTask(ctx context.Context, id string) (*AgentTask, error) {
	var out *AgentTask
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var record gormAgentTaskRecord
		if err := tx.First(&record, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrTaskNotFound
			}
			return err
		}

		status := AgentTaskState(record.Status)
		if status != AgentTaskPending && status != AgentTaskAssigned {
			return ErrNotCancellable
		}

		now := time.Now().UTC()
		res := tx.Model(&gormAgentTaskRecord{}).Where("id = ? AND status = ?", id, record.Status).Updates(map[string]any{
			"status":       string(AgentTaskCancelled),
			"updated_at":   now.UnixNano(),
			"completed_at": now.UnixNano(),
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotCancellable
		}
		if err := tx.First(&record, "id = ?", id).Error; err != nil {
			return err
		}

		var err error
		out, err = fromAgentTaskRecord(&record)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (g *GormAdapter) ReviveExpiredLeases(ctx context.Context, leaseTimeout time.Duration) ([]*AgentTask, error) {
	cutoff := time.Now().Add(-leaseTimeout).UnixNano()

	var records []gormAgentTaskRecord
	if err := g.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", string(AgentTaskRunning), cutoff).
		Find(&records).Error; err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	revived := make([]*AgentTask, 0, len(records))
	for i := range records {
		r := &records[i]
		err := g.db.WithContext(ctx).Model(&gormAgentTaskRecord{}).Where("id = ?", r.ID).Updates(map[string]any{
			"status":     string(AgentTaskPending),
			"worker_id":  "",
			"started_at": nil,
			"updated_at": now.UnixNano(),
		}).Error
		if err != nil {
			return nil, err
		}

		r.Status = string(AgentTaskPending)
		r.WorkerID = ""
		r.StartedAt = nil
		r.UpdatedAt = now.UnixNano()
		task, err := fromAgentTaskRecord(r)
		if err != nil {
			return nil, err
		}
		revived = append(revived, task)
	}
	return revived, nil
}
