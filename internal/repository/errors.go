package repository

import "errors"

var (
	// ErrNotFound 引用的记录不存在
	ErrNotFound = errors.New("record not found")
	// ErrConflict 写入会与其他记录的唯一标识冲突
	ErrConflict = errors.New("conflicting record")
)
