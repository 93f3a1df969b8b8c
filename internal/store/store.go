package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/gavenwangcn/AIFutureTrade-sub003/internal/policy"
	"github.com/gavenwangcn/AIFutureTrade-sub003/internal/types"
)

// 中文说明：
// 策略持久化存储（Gorm + SQLite）：按 (model_id, kind) 供给已排序的
// 策略记录。连接管理与表结构归本包，引擎只消费 policy.Provider 接口。

type policyModel struct {
	ID            int64          `gorm:"column:id;primaryKey"`
	Name          string         `gorm:"column:name;uniqueIndex:idx_policy_model_name"`
	ModelID       int64          `gorm:"column:model_id;uniqueIndex:idx_policy_model_name;index"`
	Kind          string         `gorm:"column:kind;index"`
	Priority      int            `gorm:"column:priority"`
	Handler       string         `gorm:"column:handler"`
	Source        string         `gorm:"column:source"`
	Params        datatypes.JSON `gorm:"column:params"`
	Enabled       bool           `gorm:"column:enabled"`
	CreatedAtUnix int64          `gorm:"column:created_at"`
	UpdatedAtUnix int64          `gorm:"column:updated_at"`
}

func (policyModel) TableName() string { return "policies" }

// Store Gorm + SQLite 策略存储，实现 policy.Provider。
type Store struct {
	db    *gorm.DB
	retry RetryConfig
}

var _ policy.Provider = (*Store)(nil)

// New 打开（必要时创建）SQLite 策略库并完成迁移。
func New(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("policy store: 数据库路径不能为空")
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&policyModel{}); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &Store{db: db}, nil
}

// SetRetry 调整读路径的重试参数。
func (s *Store) SetRetry(cfg RetryConfig) {
	if s != nil {
		s.retry = cfg
	}
}

// Close 关闭底层连接。
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ListPolicies 实现 policy.Provider：priority 降序、created_at 升序。
func (s *Store) ListPolicies(ctx context.Context, modelID int64, kind types.Flow) ([]policy.Record, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("policy store 未初始化")
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("unknown decision kind %q", kind)
	}
	var models []policyModel
	err := withRetry(ctx, s.retry, "list policies", func() error {
		models = models[:0]
		return s.db.WithContext(ctx).
			Where("model_id = ? AND kind = ? AND enabled = ?", modelID, string(kind), true).
			Order("priority DESC, created_at ASC, id ASC").
			Find(&models).Error
	})
	if err != nil {
		return nil, err
	}
	out := make([]policy.Record, 0, len(models))
	for _, m := range models {
		out = append(out, modelToRecord(m))
	}
	return out, nil
}

// SavePolicy 新增或按 (model_id, name) 更新策略定义。
func (s *Store) SavePolicy(ctx context.Context, rec policy.Record) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("policy store 未初始化")
	}
	if strings.TrimSpace(rec.Name) == "" {
		return fmt.Errorf("policy name 必填")
	}
	if !rec.Kind.Valid() {
		return fmt.Errorf("unknown decision kind %q", rec.Kind)
	}
	now := time.Now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	model := recordToModel(rec, now)

	var existing policyModel
	err := s.db.WithContext(ctx).
		Where("model_id = ? AND name = ?", rec.ModelID, rec.Name).
		First(&existing).Error
	switch {
	case err == nil:
		model.ID = existing.ID
		model.CreatedAtUnix = existing.CreatedAtUnix
		return s.db.WithContext(ctx).Save(&model).Error
	case errors.Is(err, gorm.ErrRecordNotFound):
		return s.db.WithContext(ctx).Create(&model).Error
	default:
		return err
	}
}

// DeletePolicy 按 (model_id, name) 删除策略。
func (s *Store) DeletePolicy(ctx context.Context, modelID int64, name string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("policy store 未初始化")
	}
	return s.db.WithContext(ctx).
		Where("model_id = ? AND name = ?", modelID, strings.TrimSpace(name)).
		Delete(&policyModel{}).Error
}

// SetEnabled 启停单个策略。
func (s *Store) SetEnabled(ctx context.Context, modelID int64, name string, enabled bool) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("policy store 未初始化")
	}
	res := s.db.WithContext(ctx).Model(&policyModel{}).
		Where("model_id = ? AND name = ?", modelID, strings.TrimSpace(name)).
		Updates(map[string]any{
			"enabled":    enabled,
			"updated_at": time.Now().Unix(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func recordToModel(rec policy.Record, now time.Time) policyModel {
	var params datatypes.JSON
	if len(rec.Params) > 0 {
		if data, err := json.Marshal(rec.Params); err == nil {
			params = datatypes.JSON(data)
		}
	}
	return policyModel{
		Name:          strings.TrimSpace(rec.Name),
		ModelID:       rec.ModelID,
		Kind:          string(rec.Kind),
		Priority:      rec.Priority,
		Handler:       strings.TrimSpace(strings.ToLower(rec.Handler)),
		Source:        rec.Source,
		Params:        params,
		Enabled:       rec.Enabled,
		CreatedAtUnix: rec.CreatedAt.Unix(),
		UpdatedAtUnix: now.Unix(),
	}
}

func modelToRecord(m policyModel) policy.Record {
	rec := policy.Record{
		Name:      strings.TrimSpace(m.Name),
		ModelID:   m.ModelID,
		Kind:      types.Flow(m.Kind),
		Priority:  m.Priority,
		Handler:   strings.TrimSpace(m.Handler),
		Source:    m.Source,
		Enabled:   m.Enabled,
		CreatedAt: time.Unix(m.CreatedAtUnix, 0),
	}
	if len(m.Params) > 0 {
		var params map[string]any
		if err := json.Unmarshal(m.Params, &params); err == nil {
			rec.Params = params
		}
	}
	return rec
}
