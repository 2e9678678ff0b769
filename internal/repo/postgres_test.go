package repo_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/beatlive/room-api/internal/idgen"
	"github.com/beatlive/room-api/internal/migrations"
	"github.com/beatlive/room-api/internal/models"
	"github.com/beatlive/room-api/internal/repo"
	"github.com/beatlive/room-api/internal/service"
)

type tokenGen struct{}

func (tokenGen) New() string { return idgen.NewToken() }

// setupPostgres はPostgreSQLコンテナを起動し、マイグレーション適用済みの
// 接続プールを返します。Dockerが使えない環境ではテストをスキップします。
func setupPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	ctx := context.Background()
	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("testdb"),
		tcpostgres.WithUsername("testuser"),
		tcpostgres.WithPassword("testpass"),
		tc.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Skipf("could not start postgres container: %v", err)
	}
	t.Cleanup(func() { _ = pgContainer.Terminate(context.Background()) })

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	require.NoError(t, migrations.Up(dsn, logger))

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, pool.Ping(ctx))

	return pool
}

func TestPostgresStore_Integration(t *testing.T) {
	pool := setupPostgres(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	// 並行テストではリトライ上限を高めにしておく
	store := repo.NewPostgresStore(pool, 10, logger)
	users := service.NewUserService(store, tokenGen{}, logger)
	rooms := service.NewRoomService(store, users, nil, 4, logger)
	ctx := context.Background()

	t.Run("room lifecycle", func(t *testing.T) {
		tokenA, err := users.Create(ctx, "alice", 1)
		require.NoError(t, err)
		tokenB, err := users.Create(ctx, "bob", 2)
		require.NoError(t, err)

		roomID, err := rooms.Create(ctx, tokenA, 10, models.DifficultyNormal)
		require.NoError(t, err)

		result, err := rooms.Join(ctx, tokenB, roomID, models.DifficultyHard)
		require.NoError(t, err)
		require.Equal(t, models.JoinOk, result)

		require.NoError(t, rooms.Start(ctx, tokenA, roomID))
		require.NoError(t, rooms.End(ctx, tokenA, roomID, []int64{10, 5, 3, 1, 0}, 123456))
		require.NoError(t, rooms.End(ctx, tokenB, roomID, []int64{8, 6, 4, 2, 1}, 98765))

		results, err := rooms.Result(ctx, tokenA, roomID)
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, []int64{10, 5, 3, 1, 0}, results[0].JudgeCountList)
		assert.Equal(t, int64(123456), results[0].Score)
		assert.Equal(t, int64(98765), results[1].Score)
	})

	t.Run("concurrent joins respect capacity", func(t *testing.T) {
		host, err := users.Create(ctx, "host", 1)
		require.NoError(t, err)
		roomID, err := rooms.Create(ctx, host, 20, models.DifficultyNormal)
		require.NoError(t, err)

		const contenders = 8
		tokens := make([]string, contenders)
		for i := range tokens {
			tokens[i], err = users.Create(ctx, fmt.Sprintf("contender%d", i), 1)
			require.NoError(t, err)
		}

		var wg sync.WaitGroup
		results := make([]models.JoinRoomResult, contenders)
		for i := 0; i < contenders; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				r, err := rooms.Join(ctx, tokens[i], roomID, models.DifficultyNormal)
				require.NoError(t, err)
				results[i] = r
			}(i)
		}
		wg.Wait()

		okCount := 0
		for _, r := range results {
			if r == models.JoinOk {
				okCount++
			} else {
				assert.Equal(t, models.JoinRoomFull, r)
			}
		}
		// ホスト込みで定員4 = 残り3枠
		assert.Equal(t, 3, okCount)

		infos, err := rooms.List(ctx, 20)
		require.NoError(t, err)
		require.Len(t, infos, 1)
		assert.Equal(t, int64(4), infos[0].JoinedUserCount)

		_, members, err := rooms.Wait(ctx, host, roomID)
		require.NoError(t, err)
		assert.Len(t, members, 4)
	})

	t.Run("disband on last leave", func(t *testing.T) {
		token, err := users.Create(ctx, "solo", 1)
		require.NoError(t, err)
		roomID, err := rooms.Create(ctx, token, 30, models.DifficultyNormal)
		require.NoError(t, err)
		require.NoError(t, rooms.Leave(ctx, token, roomID))

		other, err := users.Create(ctx, "other", 1)
		require.NoError(t, err)
		result, err := rooms.Join(ctx, other, roomID, models.DifficultyNormal)
		require.NoError(t, err)
		assert.Equal(t, models.JoinDisbanded, result)
	})

	t.Run("token uniqueness enforced", func(t *testing.T) {
		err := store.InTx(ctx, func(tx repo.Tx) error {
			_, err := tx.InsertUser(ctx, "dup1", "fixed-token", 1)
			require.NoError(t, err)
			_, err = tx.InsertUser(ctx, "dup2", "fixed-token", 1)
			assert.ErrorIs(t, err, repo.ErrUniqueViolation)
			// 一意制約違反のあとはトランザクションを破棄する
			return err
		})
		assert.ErrorIs(t, err, repo.ErrUniqueViolation)
	})
}
