// Package repo はルームとユーザーの永続化を担当します
// Store.InTx が提供するトランザクション境界の中で、Tx の各操作を
// 組み合わせて read-modify-write を行うのが前提です。
package repo

import (
	"context"
	"errors"

	"github.com/beatlive/room-api/internal/models"
)

var (
	// ErrUniqueViolation は一意制約違反（トークン衝突など）を表します
	ErrUniqueViolation = errors.New("unique constraint violation")

	// ErrTxConflict はリトライ上限まで直列化に失敗したことを表します
	ErrTxConflict = errors.New("transaction conflict: retries exhausted")
)

// Store はトランザクション境界を提供します
// fn がエラーを返した場合はロールバックされ、そのエラーがそのまま返ります。
// 直列化の失敗は実装側で上限付きリトライされます。
type Store interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx は単一トランザクション内で実行できる操作の集合です
type Tx interface {
	// ルーム操作
	GetRoom(ctx context.Context, roomID int64) (models.Room, bool, error)
	// GetRoomForUpdate は該当ルーム行をロックして取得します。
	// 同一ルームへの並行 join/leave はここで直列化されます。
	GetRoomForUpdate(ctx context.Context, roomID int64) (models.Room, bool, error)
	ListOpenRooms(ctx context.Context, liveID int64) ([]models.Room, error)
	InsertRoom(ctx context.Context, liveID, maxUserCount int64) (int64, error)
	UpdateOccupancy(ctx context.Context, roomID, count int64) error
	UpdatePhase(ctx context.Context, roomID int64, phase models.RoomPhase) error

	// メンバー操作（入場順を保存します）
	GetMembers(ctx context.Context, roomID int64) ([]models.RoomMember, error)
	InsertMember(ctx context.Context, roomID, userID int64, difficulty models.LiveDifficulty, isHost bool) error
	DeleteMember(ctx context.Context, roomID, userID int64) (bool, error)
	SetMemberResult(ctx context.Context, roomID, userID int64, judgeCountList []int64, score int64) error

	// ユーザー操作
	InsertUser(ctx context.Context, name, token string, leaderCardID int64) (int64, error)
	GetUserByToken(ctx context.Context, token string) (models.User, bool, error)
	UpdateUserByToken(ctx context.Context, token, name string, leaderCardID int64) error
}
