package model

import "time"

// User 用户资料及冗余计数（粉丝数 / 关注数）
// 计数只由关注关系事务维护，其他路径不得写入；BackendID 非空时全局唯一
type User struct {
	ID             string    `json:"id" gorm:"primaryKey;type:varchar(128)"`
	BackendID      string    `json:"backend_id,omitempty" gorm:"type:varchar(64);uniqueIndex:idx_user_backend_unique,where:backend_id <> ''"`
	Username       string    `json:"username" gorm:"type:varchar(64)"`
	AvatarURL      string    `json:"avatar_url,omitempty" gorm:"type:varchar(512)"`
	PushToken      string    `json:"-" gorm:"type:varchar(512)"`
	FollowerCount  int64     `json:"followers" gorm:"not null;default:0"`
	FollowingCount int64     `json:"following" gorm:"not null;default:0"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (User) TableName() string { return "users" }

// IDs 返回该用户可被引用的全部身份标识（认证 ID 优先）
func (u *User) IDs() []string {
	if u.BackendID == "" || u.BackendID == u.ID {
		return []string{u.ID}
	}
	return []string{u.ID, u.BackendID}
}
