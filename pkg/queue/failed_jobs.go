package queue

import (
	"context"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/darcho/darcho/pkg/logger"
)

// FailedJobRecord is a job that ran out of attempts, stored in darcho_failed_jobs.
type FailedJobRecord struct {
	ID       uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	JobID    string    `gorm:"size:64;index" json:"job_id"`
	JobType  string    `gorm:"size:191;not null;index" json:"job_type"`
	Payload  string    `gorm:"type:text;not null" json:"payload"`
	Error    string    `gorm:"type:text" json:"error"`
	Attempts int       `gorm:"not null;default:0" json:"attempts"`
	FailedAt time.Time `gorm:"autoCreateTime" json:"failed_at"`
}

func (FailedJobRecord) TableName() string { return "darcho_failed_jobs" }

var (
	failedMu sync.RWMutex
	failedDB *gorm.DB
)

// UseDB persists failed jobs through db. Without it they are only logged.
// The table is created by the darcho migrations.
func UseDB(db *gorm.DB) {
	failedMu.Lock()
	failedDB = db
	failedMu.Unlock()
}

func persistFailed(ctx context.Context, env envelope, cause error) {
	failedMu.RLock()
	db := failedDB
	failedMu.RUnlock()
	if db == nil {
		return
	}

	rec := FailedJobRecord{
		JobID:    env.ID,
		JobType:  env.Type,
		Payload:  string(env.Payload),
		Error:    cause.Error(),
		Attempts: env.Attempts,
	}
	if err := db.WithContext(context.WithoutCancel(ctx)).Create(&rec).Error; err != nil {
		logger.Error("queue: persist failed job", "type", env.Type, "error", err)
	}
}

// FailedJobs lists the most recent failures, newest first.
func FailedJobs(ctx context.Context, limit int) ([]FailedJobRecord, error) {
	failedMu.RLock()
	db := failedDB
	failedMu.RUnlock()
	if db == nil {
		return nil, nil
	}
	var out []FailedJobRecord
	err := db.WithContext(ctx).Order("id desc").Limit(limit).Find(&out).Error
	return out, err
}
