package chat

import "errors"

var (
	// ErrChatExists 会话 ID 已存在
	ErrChatExists = errors.New("chat already exists")
	// ErrChatNotFound 会话不存在
	ErrChatNotFound = errors.New("chat not found")
	// ErrNoParticipant 会话缺少顾客和店铺
	ErrNoParticipant = errors.New("chat requires a customer or a shop")
)
