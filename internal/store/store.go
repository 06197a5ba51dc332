// Package store persists pipeline runs to an embedded database so partial
// work is reviewable after the fact.
// This package is internal and should not be imported by external projects.
package store

import (
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// =============================================================================
// 💾 运行台账
// =============================================================================

// RunRecord 一次流水线运行
type RunRecord struct {
	ID         string `gorm:"primaryKey"`
	StartedAt  time.Time
	FinishedAt *time.Time
	// 最终状态: COMPLETED, ABORTED
	State string
	// 最远完成的步骤
	FurthestStep string
	// 中止原因（完成时为空）
	AbortReason string

	Steps []StepRecord `gorm:"foreignKey:RunID"`
}

// StepRecord 一个步骤的执行结果
type StepRecord struct {
	ID       uint   `gorm:"primaryKey;autoIncrement"`
	RunID    string `gorm:"index"`
	StepID   string
	Action   string
	// 状态: COMPLETED, FAILED
	Status   string
	Attempts int
	// 定位信任来源（navigate 步骤）
	Trust       string
	DeviationPx float64

	Failures []FieldFailureRecord `gorm:"foreignKey:StepRecordID"`
}

// FieldFailureRecord 一个注入失败的字段
type FieldFailureRecord struct {
	ID           uint `gorm:"primaryKey;autoIncrement"`
	StepRecordID uint `gorm:"index"`
	Field        string
	Reason       string
}

// Store 台账存储
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

// Open 打开（或创建）台账数据库并迁移表结构
// 测试中使用 ":memory:"
func Open(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open run ledger: %w", err)
	}
	if err := db.AutoMigrate(&RunRecord{}, &StepRecord{}, &FieldFailureRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate run ledger: %w", err)
	}
	logger.Info("run ledger opened", zap.String("path", path))
	return &Store{
		db:     db,
		logger: logger.With(zap.String("component", "store")),
	}, nil
}

// StartRun 记录一次运行的开始，返回运行 ID
func (s *Store) StartRun() (string, error) {
	run := RunRecord{
		ID:        uuid.NewString(),
		StartedAt: time.Now(),
		State:     "RUNNING",
	}
	if err := s.db.Create(&run).Error; err != nil {
		return "", fmt.Errorf("failed to record run start: %w", err)
	}
	return run.ID, nil
}

// FinishRun 记录运行结束
func (s *Store) FinishRun(runID, state, furthestStep, abortReason string) error {
	now := time.Now()
	return s.db.Model(&RunRecord{}).
		Where("id = ?", runID).
		Updates(map[string]any{
			"finished_at":   &now,
			"state":         state,
			"furthest_step": furthestStep,
			"abort_reason":  abortReason,
		}).Error
}

// StepOutcome 一个步骤的落库参数
type StepOutcome struct {
	StepID      string
	Action      string
	Status      string
	Attempts    int
	Trust       string
	DeviationPx float64
	Failures    []FieldFailureRecord
}

// RecordStep 落库一个步骤的结果
func (s *Store) RecordStep(runID string, outcome StepOutcome) error {
	rec := StepRecord{
		RunID:       runID,
		StepID:      outcome.StepID,
		Action:      outcome.Action,
		Status:      outcome.Status,
		Attempts:    outcome.Attempts,
		Trust:       outcome.Trust,
		DeviationPx: outcome.DeviationPx,
		Failures:    outcome.Failures,
	}
	if err := s.db.Create(&rec).Error; err != nil {
		return fmt.Errorf("failed to record step: %w", err)
	}
	return nil
}

// GetRun 取回一次运行及其步骤和失败字段
func (s *Store) GetRun(runID string) (*RunRecord, error) {
	var run RunRecord
	err := s.db.
		Preload("Steps").
		Preload("Steps.Failures").
		First(&run, "id = ?", runID).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load run %s: %w", runID, err)
	}
	return &run, nil
}

// RecentRuns 取回最近的 n 次运行（不含步骤明细）
func (s *Store) RecentRuns(n int) ([]RunRecord, error) {
	var runs []RunRecord
	err := s.db.
		Order("started_at DESC").
		Limit(n).
		Find(&runs).Error
	return runs, err
}
