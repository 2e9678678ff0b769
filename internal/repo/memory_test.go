package repo

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beatlive/room-api/internal/models"
)

func TestMemoryStore_RollbackOnError(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	var roomID int64
	err := store.InTx(ctx, func(tx Tx) error {
		id, err := tx.InsertRoom(ctx, 10, 4)
		require.NoError(t, err)
		roomID = id
		return nil
	})
	require.NoError(t, err)

	boom := errors.New("boom")
	err = store.InTx(ctx, func(tx Tx) error {
		require.NoError(t, tx.UpdatePhase(ctx, roomID, models.PhasePlaying))
		require.NoError(t, tx.UpdateOccupancy(ctx, roomID, 3))
		if _, err := tx.InsertRoom(ctx, 20, 4); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	// fn のエラーで途中の変更がすべて巻き戻っていること
	err = store.InTx(ctx, func(tx Tx) error {
		room, ok, err := tx.GetRoom(ctx, roomID)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, models.PhaseOpen, room.Phase)
		assert.Equal(t, int64(0), room.JoinedUserCount)

		rooms, err := tx.ListOpenRooms(ctx, 20)
		require.NoError(t, err)
		assert.Empty(t, rooms)
		return nil
	})
	require.NoError(t, err)
}

func TestMemoryStore_UniqueViolations(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	err := store.InTx(ctx, func(tx Tx) error {
		userID, err := tx.InsertUser(ctx, "alice", "tok-1", 1)
		require.NoError(t, err)

		_, err = tx.InsertUser(ctx, "bob", "tok-1", 2)
		assert.ErrorIs(t, err, ErrUniqueViolation)

		roomID, err := tx.InsertRoom(ctx, 10, 4)
		require.NoError(t, err)
		require.NoError(t, tx.InsertMember(ctx, roomID, userID, models.DifficultyNormal, true))

		err = tx.InsertMember(ctx, roomID, userID, models.DifficultyHard, false)
		assert.ErrorIs(t, err, ErrUniqueViolation)
		return nil
	})
	require.NoError(t, err)
}

func TestMemoryStore_MemberOrderSurvivesDelete(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	err := store.InTx(ctx, func(tx Tx) error {
		roomID, err := tx.InsertRoom(ctx, 10, 4)
		require.NoError(t, err)

		var userIDs []int64
		for _, name := range []string{"a", "b", "c"} {
			id, err := tx.InsertUser(ctx, name, "tok-"+name, 1)
			require.NoError(t, err)
			require.NoError(t, tx.InsertMember(ctx, roomID, id, models.DifficultyNormal, name == "a"))
			userIDs = append(userIDs, id)
		}

		removed, err := tx.DeleteMember(ctx, roomID, userIDs[1])
		require.NoError(t, err)
		require.True(t, removed)

		// 残りは入場順のまま
		members, err := tx.GetMembers(ctx, roomID)
		require.NoError(t, err)
		require.Len(t, members, 2)
		assert.Equal(t, userIDs[0], members[0].UserID)
		assert.Equal(t, userIDs[2], members[1].UserID)

		// 非メンバーの削除は false
		removed, err = tx.DeleteMember(ctx, roomID, userIDs[1])
		require.NoError(t, err)
		assert.False(t, removed)
		return nil
	})
	require.NoError(t, err)
}

func TestMemoryStore_ResultVisibility(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	err := store.InTx(ctx, func(tx Tx) error {
		roomID, err := tx.InsertRoom(ctx, 10, 4)
		require.NoError(t, err)
		userID, err := tx.InsertUser(ctx, "alice", "tok", 1)
		require.NoError(t, err)
		require.NoError(t, tx.InsertMember(ctx, roomID, userID, models.DifficultyNormal, true))

		members, err := tx.GetMembers(ctx, roomID)
		require.NoError(t, err)
		require.Len(t, members, 1)
		assert.False(t, members[0].HasResult)

		require.NoError(t, tx.SetMemberResult(ctx, roomID, userID, []int64{1, 2, 3}, 9000))

		members, err = tx.GetMembers(ctx, roomID)
		require.NoError(t, err)
		require.True(t, members[0].HasResult)
		assert.Equal(t, []int64{1, 2, 3}, members[0].JudgeCountList)
		assert.Equal(t, int64(9000), members[0].Score)
		return nil
	})
	require.NoError(t, err)
}
