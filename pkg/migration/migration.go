// Package migration runs timestamped schema migrations and records them in
// darcho_migrations.
//
//	func init() {
//	    migration.Register("20260301000000_create_users_table", &CreateUsersTable{})
//	}
//
//	darcho migrate             // run all pending in one batch
//	darcho migrate:rollback    // undo the last batch
//	darcho migrate:status
package migration

import (
	"database/sql"
	"fmt"
	"sort"
	"time"

	"gorm.io/gorm"

	"github.com/darcho/darcho/pkg/logger"
)

// Migration is the interface every migration implements.
type Migration interface {
	Up(db *gorm.DB) error
	Down(db *gorm.DB) error
}

type migrationRecord struct {
	ID    uint      `gorm:"primaryKey;autoIncrement"`
	Name  string    `gorm:"uniqueIndex;size:191;not null"`
	Batch int       `gorm:"not null"`
	RunAt time.Time `gorm:"autoCreateTime"`
}

func (migrationRecord) TableName() string { return "darcho_migrations" }

type registeredMigration struct {
	name string
	m    Migration
}

var registry []registeredMigration

// Register adds a migration. Names sort chronologically.
func Register(name string, m Migration) {
	for _, reg := range registry {
		if reg.name == name {
			panic("migration: duplicate name " + name)
		}
	}
	registry = append(registry, registeredMigration{name: name, m: m})
	sort.Slice(registry, func(i, j int) bool { return registry[i].name < registry[j].name })
}

// Status is one row of migrate:status.
type Status struct {
	Name  string
	Ran   bool
	Batch int
}

// Runner executes and tracks migrations.
type Runner struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Runner {
	return &Runner{db: db}
}

// EnsureTable creates the tracking table if it does not exist.
func (r *Runner) EnsureTable() error {
	return r.db.AutoMigrate(&migrationRecord{})
}

func (r *Runner) ran() (map[string]migrationRecord, error) {
	var rows []migrationRecord
	if err := r.db.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]migrationRecord, len(rows))
	for _, rec := range rows {
		out[rec.Name] = rec
	}
	return out, nil
}

func (r *Runner) pending() ([]registeredMigration, error) {
	done, err := r.ran()
	if err != nil {
		return nil, err
	}
	var pending []registeredMigration
	for _, reg := range registry {
		if _, ok := done[reg.name]; !ok {
			pending = append(pending, reg)
		}
	}
	return pending, nil
}

// Run applies every pending migration as one batch and returns their names.
func (r *Runner) Run() ([]string, error) {
	if err := r.EnsureTable(); err != nil {
		return nil, fmt.Errorf("migration: ensure table: %w", err)
	}

	pending, err := r.pending()
	if err != nil {
		return nil, fmt.Errorf("migration: fetch pending: %w", err)
	}
	if len(pending) == 0 {
		return nil, nil
	}

	batch, err := r.lastBatch()
	if err != nil {
		return nil, err
	}
	batch++

	applied := make([]string, 0, len(pending))
	for _, reg := range pending {
		logger.Info("migration: running", "name", reg.name, "batch", batch)
		if err := reg.m.Up(r.db); err != nil {
			return applied, fmt.Errorf("migration: %s up: %w", reg.name, err)
		}
		if err := r.db.Create(&migrationRecord{Name: reg.name, Batch: batch}).Error; err != nil {
			return applied, fmt.Errorf("migration: record %s: %w", reg.name, err)
		}
		applied = append(applied, reg.name)
	}
	return applied, nil
}

// Rollback reverses the most recent batch and returns the names undone.
func (r *Runner) Rollback() ([]string, error) {
	if err := r.EnsureTable(); err != nil {
		return nil, fmt.Errorf("migration: ensure table: %w", err)
	}

	batch, err := r.lastBatch()
	if err != nil || batch == 0 {
		return nil, err
	}

	var records []migrationRecord
	if err := r.db.Where("batch = ?", batch).Order("id desc").Find(&records).Error; err != nil {
		return nil, err
	}

	byName := make(map[string]Migration, len(registry))
	for _, reg := range registry {
		byName[reg.name] = reg.m
	}

	undone := make([]string, 0, len(records))
	for _, rec := range records {
		m, ok := byName[rec.Name]
		if !ok {
			return undone, fmt.Errorf("migration: cannot roll back %s: not registered", rec.Name)
		}
		logger.Info("migration: rolling back", "name", rec.Name)
		if err := m.Down(r.db); err != nil {
			return undone, fmt.Errorf("migration: %s down: %w", rec.Name, err)
		}
		if err := r.db.Delete(&rec).Error; err != nil {
			return undone, err
		}
		undone = append(undone, rec.Name)
	}
	return undone, nil
}

// Status lists every registered migration and whether it has run.
func (r *Runner) Status() ([]Status, error) {
	if err := r.EnsureTable(); err != nil {
		return nil, err
	}
	done, err := r.ran()
	if err != nil {
		return nil, err
	}
	out := make([]Status, 0, len(registry))
	for _, reg := range registry {
		rec, ok := done[reg.name]
		out = append(out, Status{Name: reg.name, Ran: ok, Batch: rec.Batch})
	}
	return out, nil
}

func (r *Runner) lastBatch() (int, error) {
	var max sql.NullInt64
	if err := r.db.Model(&migrationRecord{}).Select("MAX(batch)").Scan(&max).Error; err != nil {
		return 0, fmt.Errorf("migration: last batch: %w", err)
	}
	return int(max.Int64), nil
}
