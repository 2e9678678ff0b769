package service

import "errors"

// カスタムエラー定義
var (
	ErrInvalidToken          = errors.New("invalid token")
	ErrRoomNotFound          = errors.New("room not found")
	ErrTokenGenerationFailed = errors.New("failed to generate unique token after multiple attempts")
)
