// Package models はアプリケーションで使用するデータ構造を定義します
package models

// LiveDifficulty は楽曲の難易度を表します
type LiveDifficulty int

const (
	DifficultyNormal LiveDifficulty = 1 // ノーマル
	DifficultyHard   LiveDifficulty = 2 // ハード
)

// Valid は難易度の値が定義済みかを判定します
func (d LiveDifficulty) Valid() bool {
	return d == DifficultyNormal || d == DifficultyHard
}

// JoinRoomResult はルーム入場リクエストの結果を表します
type JoinRoomResult int

const (
	JoinOk         JoinRoomResult = 1 // 入場成功
	JoinRoomFull   JoinRoomResult = 2 // 満員
	JoinDisbanded  JoinRoomResult = 3 // 解散済み（または存在しない）
	JoinOtherError JoinRoomResult = 4 // その他のエラー
)

// WaitRoomStatus はルーム待機ポーリングの結果を表します
type WaitRoomStatus int

const (
	WaitStatusWaiting     WaitRoomStatus = 1 // ホストのライブ開始待ち
	WaitStatusLiveStart   WaitRoomStatus = 2 // ライブ開始済み
	WaitStatusDissolution WaitRoomStatus = 3 // 解散済み
)

// RoomPhase はルームのライフサイクル上の状態を表します
// 遷移は open → playing → ended の一方向のみ。
// open / playing で最後のメンバーが退出した場合は disbanded になります。
type RoomPhase string

const (
	PhaseOpen      RoomPhase = "open"      // 入場受付中
	PhasePlaying   RoomPhase = "playing"   // ライブ進行中（入場不可）
	PhaseEnded     RoomPhase = "ended"     // 全員のリザルト提出済み
	PhaseDisbanded RoomPhase = "disbanded" // 解散済み
)

// User は登録済みユーザーの情報を表します
// Token は認証専用であり、レスポンスに含めてはいけません。
type User struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Token        string `json:"-"`
	LeaderCardID int64  `json:"leader_card_id"`
}

// Room はルームの永続化された状態を表します
type Room struct {
	RoomID          int64     `json:"room_id"`
	LiveID          int64     `json:"live_id"`
	JoinedUserCount int64     `json:"joined_user_count"`
	MaxUserCount    int64     `json:"max_user_count"`
	Phase           RoomPhase `json:"-"`
}

// RoomMember はルームとユーザーの所属関係を表します
// JudgeCountList と Score はリザルト提出後にのみ設定されます。
type RoomMember struct {
	RoomID           int64
	UserID           int64
	Name             string
	LeaderCardID     int64
	SelectDifficulty LiveDifficulty
	IsHost           bool
	JudgeCountList   []int64
	Score            int64
	HasResult        bool
}

// RoomInfo はルーム一覧のサマリー表示用の情報です
type RoomInfo struct {
	RoomID          int64 `json:"room_id"`
	LiveID          int64 `json:"live_id"`
	JoinedUserCount int64 `json:"joined_user_count"`
	MaxUserCount    int64 `json:"max_user_count"`
}

// RoomUser は待機画面に表示するメンバー情報です
type RoomUser struct {
	UserID           int64          `json:"user_id"`
	Name             string         `json:"name"`
	LeaderCardID     int64          `json:"leader_card_id"`
	SelectDifficulty LiveDifficulty `json:"select_difficulty"`
	IsMe             bool           `json:"is_me"`
	IsHost           bool           `json:"is_host"`
}

// ResultUser はリザルト画面に表示するメンバーごとの成績です
type ResultUser struct {
	UserID         int64   `json:"user_id"`
	JudgeCountList []int64 `json:"judge_count_list"`
	Score          int64   `json:"score"`
}
