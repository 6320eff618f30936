package model

import "time"

// ReviewLike 点赞关系（用户 -> 书评）
type ReviewLike struct {
	ID        string `gorm:"primaryKey;type:varchar(36)"`
	ReviewID  string `gorm:"type:varchar(36);not null;index:idx_like_pair,unique"`
	UserID    string `gorm:"type:varchar(128);not null;index:idx_like_pair,unique"`
	CreatedAt time.Time
}

func (ReviewLike) TableName() string { return "review_likes" }
