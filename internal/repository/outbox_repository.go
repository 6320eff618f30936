package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/d60-Lab/critichord/internal/model"
)

type OutboxRepository interface {
	// Claim 领取一批 pending 事件并置为 processing
	Claim(ctx context.Context, limit int) ([]*model.Outbox, error)
	MarkDone(ctx context.Context, id string) error
	// MarkFailed 失败计数 +1，未超过 maxRetry 时回到 pending 等待重试
	MarkFailed(ctx context.Context, id string, maxRetry int) error
}

type outboxRepository struct{ db *gorm.DB }

func NewOutboxRepository(db *gorm.DB) OutboxRepository { return &outboxRepository{db: db} }

func (r *outboxRepository) Claim(ctx context.Context, limit int) ([]*model.Outbox, error) {
	var batch []*model.Outbox
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// SELECT ... FOR UPDATE SKIP LOCKED，多 worker 并发领取互不阻塞
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("status = ?", model.OutboxPending).
			Order("created_at, id").
			Limit(limit).
			Find(&batch).Error; err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}
		ids := make([]string, len(batch))
		for i, b := range batch {
			ids[i] = b.ID
			b.Status = model.OutboxProcessing
		}
		return tx.Model(&model.Outbox{}).Where("id IN ?", ids).Update("status", model.OutboxProcessing).Error
	})
	if err != nil {
		return nil, err
	}
	return batch, nil
}

func (r *outboxRepository) MarkDone(ctx context.Context, id string) error {
	now := time.Now()
	return r.db.WithContext(ctx).Model(&model.Outbox{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": model.OutboxDone, "processed_at": now}).Error
}

func (r *outboxRepository) MarkFailed(ctx context.Context, id string, maxRetry int) error {
	return r.db.WithContext(ctx).Model(&model.Outbox{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"retry":  gorm.Expr("retry + 1"),
			"status": gorm.Expr("CASE WHEN retry + 1 >= ? THEN ? ELSE ? END", maxRetry, model.OutboxFailed, model.OutboxPending),
		}).Error
}

// insertOutbox 在调用方事务内写入事件
func insertOutbox(tx *gorm.DB, event, actorID, subjectID string) error {
	return tx.Create(&model.Outbox{
		ID:        uuid.New().String(),
		EventType: event,
		ActorID:   actorID,
		SubjectID: subjectID,
		CreatedAt: time.Now(),
		Status:    model.OutboxPending,
	}).Error
}
