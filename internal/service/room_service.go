package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/beatlive/room-api/internal/models"
	"github.com/beatlive/room-api/internal/repo"
)

// IdentityProvider はトークンから利用者を解決するインターフェース
// 解決できない場合は ErrInvalidToken を返すこと。
type IdentityProvider interface {
	Resolve(ctx context.Context, token string) (models.User, error)
}

// RoomEvent は待機中のクライアントへ配信するルームイベントです
type RoomEvent struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// Notifier はルームイベントの配信先（WebSocket ハブなど）
type Notifier interface {
	Publish(roomID int64, event RoomEvent)
}

// NopNotifier は何も配信しない Notifier 実装です
type NopNotifier struct{}

func (NopNotifier) Publish(int64, RoomEvent) {}

// RoomService はルームのライフサイクル管理を提供します
//
// 状態機械: open → playing → ended（一方向）。open / playing で
// 最後のメンバーが退出した場合のみ disbanded へ遷移します。
// 読み取り後に書き込む操作はすべて単一のストアトランザクション内で
// 実行され、同一ルームの行をロックしてから容量判定を行うため、
// 並行する join/leave が容量制約を破ることはありません。
type RoomService struct {
	store        repo.Store
	identity     IdentityProvider
	notifier     Notifier
	maxUserCount int64
	logger       *slog.Logger
}

func NewRoomService(store repo.Store, identity IdentityProvider, notifier Notifier, maxUserCount int64, logger *slog.Logger) *RoomService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &RoomService{
		store:        store,
		identity:     identity,
		notifier:     notifier,
		maxUserCount: maxUserCount,
		logger:       logger,
	}
}

// Create は新しいルームを作成し、作成者をホストとして入場させます
// 戻り値は新しいルームの ID。最初のメンバーは必ず収容できるため
// 容量判定は行いません。
func (s *RoomService) Create(ctx context.Context, token string, liveID int64, difficulty models.LiveDifficulty) (int64, error) {
	user, err := s.identity.Resolve(ctx, token)
	if err != nil {
		return 0, err
	}

	var roomID int64
	err = s.store.InTx(ctx, func(tx repo.Tx) error {
		id, err := tx.InsertRoom(ctx, liveID, s.maxUserCount)
		if err != nil {
			return err
		}
		if err := tx.InsertMember(ctx, id, user.ID, difficulty, true); err != nil {
			return err
		}
		if err := tx.UpdateOccupancy(ctx, id, 1); err != nil {
			return err
		}
		roomID = id
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.logger.Info("room created", "room_id", roomID, "live_id", liveID, "host_id", user.ID)
	return roomID, nil
}

// List は指定した楽曲の入場受付中ルームを返します
// 該当なしの場合は空のスライスを返します（エラーではない）。
func (s *RoomService) List(ctx context.Context, liveID int64) ([]models.RoomInfo, error) {
	var infos []models.RoomInfo
	err := s.store.InTx(ctx, func(tx repo.Tx) error {
		rooms, err := tx.ListOpenRooms(ctx, liveID)
		if err != nil {
			return err
		}
		infos = make([]models.RoomInfo, 0, len(rooms))
		for _, r := range rooms {
			infos = append(infos, models.RoomInfo{
				RoomID:          r.RoomID,
				LiveID:          r.LiveID,
				JoinedUserCount: r.JoinedUserCount,
				MaxUserCount:    r.MaxUserCount,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return infos, nil
}

// Join はユーザーをルームに入場させます
//
// ルーム行をロックしてから容量を判定し、メンバー追加と人数の加算を
// 同一トランザクションでコミットします。残り1枠に対する並行 join は
// ちょうど1件だけ Ok になり、もう1件は RoomFull になります。
// ストア側の異常（リトライ上限到達を含む）は OtherError として返します。
func (s *RoomService) Join(ctx context.Context, token string, roomID int64, difficulty models.LiveDifficulty) (models.JoinRoomResult, error) {
	user, err := s.identity.Resolve(ctx, token)
	if err != nil {
		return 0, err
	}

	result := models.JoinOtherError
	err = s.store.InTx(ctx, func(tx repo.Tx) error {
		room, ok, err := tx.GetRoomForUpdate(ctx, roomID)
		if err != nil {
			return err
		}
		if !ok || room.Phase == models.PhaseDisbanded {
			result = models.JoinDisbanded
			return nil
		}
		if room.Phase != models.PhaseOpen {
			result = models.JoinOtherError
			return nil
		}
		if room.JoinedUserCount >= room.MaxUserCount {
			result = models.JoinRoomFull
			return nil
		}
		if err := tx.InsertMember(ctx, roomID, user.ID, difficulty, false); err != nil {
			if errors.Is(err, repo.ErrUniqueViolation) {
				// 既に入場済み。構造的に防がれているはずの重複
				result = models.JoinOtherError
				return nil
			}
			return err
		}
		if err := tx.UpdateOccupancy(ctx, roomID, room.JoinedUserCount+1); err != nil {
			return err
		}
		result = models.JoinOk
		return nil
	})
	if err != nil {
		s.logger.Error("join failed", "room_id", roomID, "user_id", user.ID, "error", err)
		return models.JoinOtherError, nil
	}

	if result == models.JoinOk {
		s.notifier.Publish(roomID, RoomEvent{Type: "user_joined", Payload: map[string]any{
			"user_id": user.ID, "name": user.Name,
		}})
	}
	return result, nil
}

// Wait は待機画面のポーリングに応答します
// 副作用はありません。解散済み（または存在しない）ルームには
// Dissolution を返します。
func (s *RoomService) Wait(ctx context.Context, token string, roomID int64) (models.WaitRoomStatus, []models.RoomUser, error) {
	user, err := s.identity.Resolve(ctx, token)
	if err != nil {
		return 0, nil, err
	}

	status := models.WaitStatusDissolution
	users := []models.RoomUser{}
	err = s.store.InTx(ctx, func(tx repo.Tx) error {
		room, ok, err := tx.GetRoom(ctx, roomID)
		if err != nil {
			return err
		}
		if !ok || room.Phase == models.PhaseDisbanded {
			return nil
		}
		if room.Phase == models.PhaseOpen {
			status = models.WaitStatusWaiting
		} else {
			status = models.WaitStatusLiveStart
		}
		members, err := tx.GetMembers(ctx, roomID)
		if err != nil {
			return err
		}
		for _, m := range members {
			users = append(users, models.RoomUser{
				UserID:           m.UserID,
				Name:             m.Name,
				LeaderCardID:     m.LeaderCardID,
				SelectDifficulty: m.SelectDifficulty,
				IsMe:             m.UserID == user.ID,
				IsHost:           m.IsHost,
			})
		}
		return nil
	})
	if err != nil {
		return 0, nil, err
	}
	return status, users, nil
}

// Start はルームを open から playing に遷移させます
// 以降の入場はできません。既に playing の場合は何もしません。
// ホスト限定の強制はここでは行いません（クライアント側の責務）。
func (s *RoomService) Start(ctx context.Context, token string, roomID int64) error {
	if _, err := s.identity.Resolve(ctx, token); err != nil {
		return err
	}

	started := false
	err := s.store.InTx(ctx, func(tx repo.Tx) error {
		room, ok, err := tx.GetRoomForUpdate(ctx, roomID)
		if err != nil {
			return err
		}
		if !ok || room.Phase == models.PhaseDisbanded || room.Phase == models.PhaseEnded {
			return ErrRoomNotFound
		}
		if room.Phase == models.PhasePlaying {
			return nil
		}
		if err := tx.UpdatePhase(ctx, roomID, models.PhasePlaying); err != nil {
			return err
		}
		started = true
		return nil
	})
	if err != nil {
		return err
	}

	if started {
		s.notifier.Publish(roomID, RoomEvent{Type: "live_start", Payload: map[string]any{}})
	}
	return nil
}

// Leave はユーザーをルームから退出させます
//
// ホストが退出しても後任への自動昇格は行いません。ルームはホスト不在の
// まま、open である限り入場を受け付けます。最後のメンバーが退出した
// 時点で disbanded になります。playing 中の退出では、残った全員が
// 提出済みならそのトランザクション内で ended に遷移します。
func (s *RoomService) Leave(ctx context.Context, token string, roomID int64) error {
	user, err := s.identity.Resolve(ctx, token)
	if err != nil {
		return err
	}

	disbanded := false
	err = s.store.InTx(ctx, func(tx repo.Tx) error {
		room, ok, err := tx.GetRoomForUpdate(ctx, roomID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrRoomNotFound
		}
		removed, err := tx.DeleteMember(ctx, roomID, user.ID)
		if err != nil {
			return err
		}
		if !removed {
			// メンバーではない。冪等に成功扱い
			return nil
		}
		newCount := room.JoinedUserCount - 1
		if err := tx.UpdateOccupancy(ctx, roomID, newCount); err != nil {
			return err
		}
		if newCount == 0 {
			if room.Phase != models.PhaseEnded {
				if err := tx.UpdatePhase(ctx, roomID, models.PhaseDisbanded); err != nil {
					return err
				}
				disbanded = true
			}
			return nil
		}
		if room.Phase == models.PhasePlaying {
			// 未提出者の退出で残りが全員提出済みになった場合
			members, err := tx.GetMembers(ctx, roomID)
			if err != nil {
				return err
			}
			if allSubmitted(members) {
				return tx.UpdatePhase(ctx, roomID, models.PhaseEnded)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if disbanded {
		s.notifier.Publish(roomID, RoomEvent{Type: "room_disbanded", Payload: map[string]any{}})
	} else {
		s.notifier.Publish(roomID, RoomEvent{Type: "user_left", Payload: map[string]any{
			"user_id": user.ID,
		}})
	}
	return nil
}

// End は呼び出し元メンバーのリザルトを記録します
// ルーム全体の ended への遷移は、在籍メンバー全員の提出が揃った
// 最後の提出と同一トランザクションで行われます。
func (s *RoomService) End(ctx context.Context, token string, roomID int64, judgeCountList []int64, score int64) error {
	user, err := s.identity.Resolve(ctx, token)
	if err != nil {
		return err
	}

	return s.store.InTx(ctx, func(tx repo.Tx) error {
		_, ok, err := tx.GetRoomForUpdate(ctx, roomID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrRoomNotFound
		}
		if err := tx.SetMemberResult(ctx, roomID, user.ID, judgeCountList, score); err != nil {
			return err
		}
		members, err := tx.GetMembers(ctx, roomID)
		if err != nil {
			return err
		}
		if allSubmitted(members) {
			return tx.UpdatePhase(ctx, roomID, models.PhaseEnded)
		}
		return nil
	})
}

// Result はメンバー全員のリザルトを入場順で返します
// 未提出者が残っている間は空のスライスを返します。
func (s *RoomService) Result(ctx context.Context, token string, roomID int64) ([]models.ResultUser, error) {
	if _, err := s.identity.Resolve(ctx, token); err != nil {
		return nil, err
	}

	results := []models.ResultUser{}
	err := s.store.InTx(ctx, func(tx repo.Tx) error {
		room, ok, err := tx.GetRoom(ctx, roomID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrRoomNotFound
		}
		if room.Phase != models.PhaseEnded {
			return nil
		}
		members, err := tx.GetMembers(ctx, roomID)
		if err != nil {
			return err
		}
		for _, m := range members {
			results = append(results, models.ResultUser{
				UserID:         m.UserID,
				JudgeCountList: m.JudgeCountList,
				Score:          m.Score,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

func allSubmitted(members []models.RoomMember) bool {
	if len(members) == 0 {
		return false
	}
	for _, m := range members {
		if !m.HasResult {
			return false
		}
	}
	return true
}
