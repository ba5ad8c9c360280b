package repository

import (
	"context"
	"errors"

	"github.com/nimasrn/finance-ledger/internal/model"
	"github.com/nimasrn/finance-ledger/pkg/pg"
	"gorm.io/gorm"
)

type ReminderRepository struct {
	*pg.DB
}

func NewReminderRepository(db *pg.DB) *ReminderRepository {
	return &ReminderRepository{
		db,
	}
}

// GetOrCreateConfig returns the single reminder configuration, creating it
// with defaults on first use.
func (r *ReminderRepository) GetOrCreateConfig(ctx context.Context) (*model.ReminderConfig, error) {
	var entity ReminderConfigEntity
	err := r.Read(ctx).Order("id ASC").First(&entity).Error
	if err == nil {
		return toReminderConfigModel(&entity), nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	created := toReminderConfigEntity(model.NewDefaultReminderConfig())
	if err := r.Write(ctx).Create(created).Error; err != nil {
		return nil, err
	}
	return toReminderConfigModel(created), nil
}

func (r *ReminderRepository) SaveConfig(ctx context.Context, cfg *model.ReminderConfig) (*model.ReminderConfig, error) {
	entity := toReminderConfigEntity(cfg)
	if err := r.Write(ctx).Save(entity).Error; err != nil {
		return nil, err
	}
	return toReminderConfigModel(entity), nil
}

func (r *ReminderRepository) CreateLog(ctx context.Context, l *model.ReminderLog) error {
	entity := &ReminderLogEntity{
		TransactionID: l.TransactionID,
		Channel:       string(l.Channel),
		Status:        string(l.Status),
		Message:       l.Message,
		Error:         l.Error,
	}
	if err := r.Write(ctx).Create(entity).Error; err != nil {
		return err
	}
	l.ID = entity.ID
	l.CreatedAt = entity.CreatedAt
	return nil
}

// ListLogs returns the newest logs first.
func (r *ReminderRepository) ListLogs(ctx context.Context, limit int) ([]*model.ReminderLog, error) {
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	var entities []*ReminderLogEntity
	if err := r.Read(ctx).Order("created_at DESC, id DESC").Limit(limit).Find(&entities).Error; err != nil {
		return nil, err
	}
	logs := make([]*model.ReminderLog, len(entities))
	for i, e := range entities {
		logs[i] = toReminderLogModel(e)
	}
	return logs, nil
}
