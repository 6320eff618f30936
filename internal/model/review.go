package model

import (
	"math"
	"strconv"
	"strings"
)

// Review 专辑书评
// 作者可能记录在 AuthorUID（认证 ID）或 AuthorBackendID（旧后端 ID）上，取决于创建路径
type Review struct {
	ID              string `json:"id" gorm:"primaryKey;type:varchar(36)"`
	AlbumID         string `json:"album_id" gorm:"type:varchar(64);index:idx_review_album"`
	AuthorUID       string `json:"author_uid,omitempty" gorm:"type:varchar(128);index:idx_review_author_uid"`
	AuthorBackendID string `json:"author_backend_id,omitempty" gorm:"type:varchar(64);index:idx_review_author_backend"`
	Content         string `json:"content" gorm:"type:text"`
	Score           int    `json:"score"`
	CreatedAt       string `json:"created_at" gorm:"type:varchar(32)"`
	UpdatedAt       string `json:"updated_at" gorm:"type:varchar(32)"`
	Favorite        bool   `json:"favorite"`
	Likes           int64  `json:"likes" gorm:"not null;default:0"`
}

func (Review) TableName() string { return "reviews" }

// AuthorRef 书评作者引用：要么是已确定的 ID，要么未确定
type AuthorRef struct {
	id string
}

// ID 返回作者 ID；ok 为 false 表示无法确定作者
func (r AuthorRef) ID() (id string, ok bool) { return r.id, r.id != "" }

// Author 按认证 ID 优先、后端 ID 兜底的顺序确定作者
func (rv *Review) Author() AuthorRef {
	if uid := strings.TrimSpace(rv.AuthorUID); uid != "" {
		return AuthorRef{id: uid}
	}
	return AuthorRef{id: strings.TrimSpace(rv.AuthorBackendID)}
}

// SortKey 把 CreatedAt 解析为十进制数值；无法解析时 ok 为 false
// Inf、NaN、十六进制和带下划线的写法都视为无法解析
func (rv *Review) SortKey() (ts float64, ok bool) {
	s := strings.TrimSpace(rv.CreatedAt)
	if s == "" || strings.IndexFunc(s, notDecimal) >= 0 {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func notDecimal(r rune) bool {
	return !strings.ContainsRune("0123456789.+-eE", r)
}

// FeedItem 关注流条目：书评 + 已解析的作者，不落库
type FeedItem struct {
	Review *Review `json:"review"`
	Author *User   `json:"author"`
}
