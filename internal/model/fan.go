package model

import "time"

// Fan 粉丝关系（B 的粉丝是 A），与 Follow 在同一事务内写入
type Fan struct {
	ID        string `gorm:"primaryKey;type:varchar(36)"`
	UserID    string `gorm:"type:varchar(128);index:idx_fan_user;index:idx_fan_pair,unique;not null"`
	FanID     string `gorm:"type:varchar(128);not null;index:idx_fan_pair,unique"`
	CreatedAt time.Time
}

func (Fan) TableName() string { return "fans" }
