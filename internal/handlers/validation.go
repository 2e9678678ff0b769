package handlers

import (
	"fmt"

	"github.com/beatlive/room-api/internal/models"
)

// validateRoomID はルームIDのバリデーションを行います
func validateRoomID(roomID int64) error {
	if roomID <= 0 {
		return fmt.Errorf("room_id required")
	}
	return nil
}

// validateDifficulty は難易度のバリデーションを行います
func validateDifficulty(d models.LiveDifficulty) error {
	if !d.Valid() {
		return fmt.Errorf("invalid select_difficulty")
	}
	return nil
}

// validateUserName はユーザー名のバリデーションを行います
func validateUserName(name string) error {
	if name == "" {
		return fmt.Errorf("user_name required")
	}
	if len(name) > 255 {
		return fmt.Errorf("user_name too long")
	}
	return nil
}
