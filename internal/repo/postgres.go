package repo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/beatlive/room-api/internal/models"
)

// PostgresStore は PostgreSQL 上の Store 実装です
// すべてのトランザクションを SERIALIZABLE で実行し、
// 直列化失敗（40001 / 40P01）は maxAttempts 回まで自動リトライします。
type PostgresStore struct {
	pool        *pgxpool.Pool
	maxAttempts int
	logger      *slog.Logger
}

func NewPostgresStore(pool *pgxpool.Pool, maxAttempts int, logger *slog.Logger) *PostgresStore {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &PostgresStore{pool: pool, maxAttempts: maxAttempts, logger: logger}
}

func (s *PostgresStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		err := s.runTx(ctx, fn)
		if err == nil {
			return nil
		}
		if !isSerializationFailure(err) {
			return err
		}
		s.logger.Warn("transaction serialization failure, retrying",
			"attempt", attempt, "max_attempts", s.maxAttempts)
		lastErr = err
	}
	return fmt.Errorf("%w: %v", ErrTxConflict, lastErr)
}

func (s *PostgresStore) runTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	// エラー時は必ずロールバック（コミット済みなら無害）
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// isSerializationFailure は SQLSTATE 40001（直列化失敗）と
// 40P01（デッドロック検出）を判定します
func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// pgTx は単一の pgx トランザクションに対する Tx 実装です
type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) GetRoom(ctx context.Context, roomID int64) (models.Room, bool, error) {
	return t.getRoom(ctx, roomID, false)
}

func (t *pgTx) GetRoomForUpdate(ctx context.Context, roomID int64) (models.Room, bool, error) {
	return t.getRoom(ctx, roomID, true)
}

func (t *pgTx) getRoom(ctx context.Context, roomID int64, forUpdate bool) (models.Room, bool, error) {
	q := `SELECT room_id, live_id, joined_user_count, max_user_count, phase
	        FROM rooms WHERE room_id = $1`
	if forUpdate {
		q += " FOR UPDATE"
	}
	var r models.Room
	err := t.tx.QueryRow(ctx, q, roomID).Scan(
		&r.RoomID, &r.LiveID, &r.JoinedUserCount, &r.MaxUserCount, &r.Phase)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Room{}, false, nil
	}
	if err != nil {
		return models.Room{}, false, fmt.Errorf("get room: %w", err)
	}
	return r, true, nil
}

func (t *pgTx) ListOpenRooms(ctx context.Context, liveID int64) ([]models.Room, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT room_id, live_id, joined_user_count, max_user_count, phase
		   FROM rooms WHERE live_id = $1 AND phase = $2 ORDER BY room_id`,
		liveID, models.PhaseOpen)
	if err != nil {
		return nil, fmt.Errorf("list open rooms: %w", err)
	}
	defer rows.Close()

	var result []models.Room
	for rows.Next() {
		var r models.Room
		if err := rows.Scan(&r.RoomID, &r.LiveID, &r.JoinedUserCount, &r.MaxUserCount, &r.Phase); err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

func (t *pgTx) InsertRoom(ctx context.Context, liveID, maxUserCount int64) (int64, error) {
	var roomID int64
	err := t.tx.QueryRow(ctx,
		`INSERT INTO rooms (live_id, max_user_count, phase)
		 VALUES ($1, $2, $3) RETURNING room_id`,
		liveID, maxUserCount, models.PhaseOpen).Scan(&roomID)
	if err != nil {
		return 0, fmt.Errorf("insert room: %w", err)
	}
	return roomID, nil
}

func (t *pgTx) UpdateOccupancy(ctx context.Context, roomID, count int64) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE rooms SET joined_user_count = $2 WHERE room_id = $1`, roomID, count)
	if err != nil {
		return fmt.Errorf("update occupancy: %w", err)
	}
	return nil
}

func (t *pgTx) UpdatePhase(ctx context.Context, roomID int64, phase models.RoomPhase) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE rooms SET phase = $2 WHERE room_id = $1`, roomID, phase)
	if err != nil {
		return fmt.Errorf("update phase: %w", err)
	}
	return nil
}

func (t *pgTx) GetMembers(ctx context.Context, roomID int64) ([]models.RoomMember, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT rm.room_id, rm.user_id, u.name, u.leader_card_id,
		        rm.select_difficulty, rm.is_host, rm.judge_count_list, rm.score
		   FROM room_members rm
		   JOIN users u ON u.id = rm.user_id
		  WHERE rm.room_id = $1
		  ORDER BY rm.id`, roomID)
	if err != nil {
		return nil, fmt.Errorf("get members: %w", err)
	}
	defer rows.Close()

	var members []models.RoomMember
	for rows.Next() {
		var m models.RoomMember
		var judges []int64
		var score *int64
		if err := rows.Scan(&m.RoomID, &m.UserID, &m.Name, &m.LeaderCardID,
			&m.SelectDifficulty, &m.IsHost, &judges, &score); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		if score != nil {
			m.JudgeCountList = judges
			m.Score = *score
			m.HasResult = true
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func (t *pgTx) InsertMember(ctx context.Context, roomID, userID int64, difficulty models.LiveDifficulty, isHost bool) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO room_members (room_id, user_id, select_difficulty, is_host)
		 VALUES ($1, $2, $3, $4)`,
		roomID, userID, difficulty, isHost)
	if isUniqueViolation(err) {
		return ErrUniqueViolation
	}
	if err != nil {
		return fmt.Errorf("insert member: %w", err)
	}
	return nil
}

func (t *pgTx) DeleteMember(ctx context.Context, roomID, userID int64) (bool, error) {
	tag, err := t.tx.Exec(ctx,
		`DELETE FROM room_members WHERE room_id = $1 AND user_id = $2`, roomID, userID)
	if err != nil {
		return false, fmt.Errorf("delete member: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (t *pgTx) SetMemberResult(ctx context.Context, roomID, userID int64, judgeCountList []int64, score int64) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE room_members SET judge_count_list = $3, score = $4
		  WHERE room_id = $1 AND user_id = $2`,
		roomID, userID, judgeCountList, score)
	if err != nil {
		return fmt.Errorf("set member result: %w", err)
	}
	return nil
}

func (t *pgTx) InsertUser(ctx context.Context, name, token string, leaderCardID int64) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx,
		`INSERT INTO users (name, token, leader_card_id)
		 VALUES ($1, $2, $3) RETURNING id`,
		name, token, leaderCardID).Scan(&id)
	if isUniqueViolation(err) {
		return 0, ErrUniqueViolation
	}
	if err != nil {
		return 0, fmt.Errorf("insert user: %w", err)
	}
	return id, nil
}

func (t *pgTx) GetUserByToken(ctx context.Context, token string) (models.User, bool, error) {
	var u models.User
	err := t.tx.QueryRow(ctx,
		`SELECT id, name, token, leader_card_id FROM users WHERE token = $1`,
		token).Scan(&u.ID, &u.Name, &u.Token, &u.LeaderCardID)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.User{}, false, nil
	}
	if err != nil {
		return models.User{}, false, fmt.Errorf("get user by token: %w", err)
	}
	return u, true, nil
}

func (t *pgTx) UpdateUserByToken(ctx context.Context, token, name string, leaderCardID int64) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE users SET name = $2, leader_card_id = $3 WHERE token = $1`,
		token, name, leaderCardID)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	return nil
}
