package repo

import (
	"context"
	"sync"

	"github.com/beatlive/room-api/internal/models"
)

// MemoryStore はインメモリの Store 実装です
// 単体テストと開発用。トランザクションはグローバルなミューテックスで
// 直列化されるため、観測できる意味論は PostgresStore と同じです。
// fn がエラーを返した場合はスナップショットへ巻き戻します。
type MemoryStore struct {
	mu sync.Mutex

	rooms     map[int64]*memRoom
	members   map[int64][]*memMember // roomID -> 入場順のメンバー
	users     map[int64]*models.User
	tokens    map[string]int64 // token -> userID
	nextRoom  int64
	nextUser  int64
	nextEntry int64
}

type memRoom struct {
	liveID          int64
	joinedUserCount int64
	maxUserCount    int64
	phase           models.RoomPhase
}

type memMember struct {
	entry          int64
	userID         int64
	difficulty     models.LiveDifficulty
	isHost         bool
	judgeCountList []int64
	score          int64
	hasResult      bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rooms:   make(map[int64]*memRoom),
		members: make(map[int64][]*memMember),
		users:   make(map[int64]*models.User),
		tokens:  make(map[string]int64),
	}
}

func (s *MemoryStore) InTx(_ context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	if err := fn(&memTx{s: s}); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

type memSnapshot struct {
	rooms     map[int64]*memRoom
	members   map[int64][]*memMember
	users     map[int64]*models.User
	tokens    map[string]int64
	nextRoom  int64
	nextUser  int64
	nextEntry int64
}

func (s *MemoryStore) snapshot() memSnapshot {
	snap := memSnapshot{
		rooms:     make(map[int64]*memRoom, len(s.rooms)),
		members:   make(map[int64][]*memMember, len(s.members)),
		users:     make(map[int64]*models.User, len(s.users)),
		tokens:    make(map[string]int64, len(s.tokens)),
		nextRoom:  s.nextRoom,
		nextUser:  s.nextUser,
		nextEntry: s.nextEntry,
	}
	for id, r := range s.rooms {
		cp := *r
		snap.rooms[id] = &cp
	}
	for id, ms := range s.members {
		cps := make([]*memMember, len(ms))
		for i, m := range ms {
			cp := *m
			cp.judgeCountList = append([]int64(nil), m.judgeCountList...)
			cps[i] = &cp
		}
		snap.members[id] = cps
	}
	for id, u := range s.users {
		cp := *u
		snap.users[id] = &cp
	}
	for t, id := range s.tokens {
		snap.tokens[t] = id
	}
	return snap
}

func (s *MemoryStore) restore(snap memSnapshot) {
	s.rooms = snap.rooms
	s.members = snap.members
	s.users = snap.users
	s.tokens = snap.tokens
	s.nextRoom = snap.nextRoom
	s.nextUser = snap.nextUser
	s.nextEntry = snap.nextEntry
}

// memTx は MemoryStore のロックを保持した状態でのみ使われます
type memTx struct {
	s *MemoryStore
}

func (t *memTx) roomModel(roomID int64, r *memRoom) models.Room {
	return models.Room{
		RoomID:          roomID,
		LiveID:          r.liveID,
		JoinedUserCount: r.joinedUserCount,
		MaxUserCount:    r.maxUserCount,
		Phase:           r.phase,
	}
}

func (t *memTx) GetRoom(_ context.Context, roomID int64) (models.Room, bool, error) {
	r, ok := t.s.rooms[roomID]
	if !ok {
		return models.Room{}, false, nil
	}
	return t.roomModel(roomID, r), true, nil
}

func (t *memTx) GetRoomForUpdate(ctx context.Context, roomID int64) (models.Room, bool, error) {
	// ストア全体がロック済みなので行ロックは不要
	return t.GetRoom(ctx, roomID)
}

func (t *memTx) ListOpenRooms(_ context.Context, liveID int64) ([]models.Room, error) {
	var result []models.Room
	for id, r := range t.s.rooms {
		if r.liveID == liveID && r.phase == models.PhaseOpen {
			result = append(result, t.roomModel(id, r))
		}
	}
	// room_id 昇順（Postgres 実装と揃える）
	for i := 1; i < len(result); i++ {
		for j := i; j > 0 && result[j-1].RoomID > result[j].RoomID; j-- {
			result[j-1], result[j] = result[j], result[j-1]
		}
	}
	return result, nil
}

func (t *memTx) InsertRoom(_ context.Context, liveID, maxUserCount int64) (int64, error) {
	t.s.nextRoom++
	id := t.s.nextRoom
	t.s.rooms[id] = &memRoom{
		liveID:       liveID,
		maxUserCount: maxUserCount,
		phase:        models.PhaseOpen,
	}
	return id, nil
}

func (t *memTx) UpdateOccupancy(_ context.Context, roomID, count int64) error {
	if r, ok := t.s.rooms[roomID]; ok {
		r.joinedUserCount = count
	}
	return nil
}

func (t *memTx) UpdatePhase(_ context.Context, roomID int64, phase models.RoomPhase) error {
	if r, ok := t.s.rooms[roomID]; ok {
		r.phase = phase
	}
	return nil
}

func (t *memTx) GetMembers(_ context.Context, roomID int64) ([]models.RoomMember, error) {
	ms := t.s.members[roomID]
	result := make([]models.RoomMember, 0, len(ms))
	for _, m := range ms {
		u := t.s.users[m.userID]
		rm := models.RoomMember{
			RoomID:           roomID,
			UserID:           m.userID,
			SelectDifficulty: m.difficulty,
			IsHost:           m.isHost,
			HasResult:        m.hasResult,
		}
		if u != nil {
			rm.Name = u.Name
			rm.LeaderCardID = u.LeaderCardID
		}
		if m.hasResult {
			rm.JudgeCountList = append([]int64(nil), m.judgeCountList...)
			rm.Score = m.score
		}
		result = append(result, rm)
	}
	return result, nil
}

func (t *memTx) InsertMember(_ context.Context, roomID, userID int64, difficulty models.LiveDifficulty, isHost bool) error {
	for _, m := range t.s.members[roomID] {
		if m.userID == userID {
			return ErrUniqueViolation
		}
	}
	t.s.nextEntry++
	t.s.members[roomID] = append(t.s.members[roomID], &memMember{
		entry:      t.s.nextEntry,
		userID:     userID,
		difficulty: difficulty,
		isHost:     isHost,
	})
	return nil
}

func (t *memTx) DeleteMember(_ context.Context, roomID, userID int64) (bool, error) {
	ms := t.s.members[roomID]
	for i, m := range ms {
		if m.userID == userID {
			t.s.members[roomID] = append(ms[:i:i], ms[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) SetMemberResult(_ context.Context, roomID, userID int64, judgeCountList []int64, score int64) error {
	for _, m := range t.s.members[roomID] {
		if m.userID == userID {
			m.judgeCountList = append([]int64(nil), judgeCountList...)
			m.score = score
			m.hasResult = true
			return nil
		}
	}
	return nil
}

func (t *memTx) InsertUser(_ context.Context, name, token string, leaderCardID int64) (int64, error) {
	if _, exists := t.s.tokens[token]; exists {
		return 0, ErrUniqueViolation
	}
	t.s.nextUser++
	id := t.s.nextUser
	t.s.users[id] = &models.User{ID: id, Name: name, Token: token, LeaderCardID: leaderCardID}
	t.s.tokens[token] = id
	return id, nil
}

func (t *memTx) GetUserByToken(_ context.Context, token string) (models.User, bool, error) {
	id, ok := t.s.tokens[token]
	if !ok {
		return models.User{}, false, nil
	}
	return *t.s.users[id], true, nil
}

func (t *memTx) UpdateUserByToken(_ context.Context, token, name string, leaderCardID int64) error {
	id, ok := t.s.tokens[token]
	if !ok {
		return nil
	}
	u := t.s.users[id]
	u.Name = name
	u.LeaderCardID = leaderCardID
	return nil
}
