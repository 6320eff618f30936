package model

import "time"

// 事件类型
const (
	EventFollow      = "follow"
	EventUnfollow    = "unfollow"
	EventReviewLiked = "review_liked"
)

// 投递状态
const (
	OutboxPending    = "pending"
	OutboxProcessing = "processing"
	OutboxDone       = "done"
	OutboxFailed     = "failed"
)

// Outbox 事件外发盒，与业务变更同事务落地，由 relay 异步投递推送
type Outbox struct {
	ID          string    `gorm:"primaryKey;type:varchar(36)"`
	EventType   string    `gorm:"type:varchar(32);not null"`
	ActorID     string    `gorm:"type:varchar(128);not null"`
	SubjectID   string    `gorm:"type:varchar(128);not null"` // 被关注的用户或被点赞的书评
	CreatedAt   time.Time `gorm:"index"`
	Status      string    `gorm:"type:varchar(16);index"`
	Retry       int       `gorm:"not null;default:0"`
	ProcessedAt *time.Time
}

func (Outbox) TableName() string { return "outbox" }
