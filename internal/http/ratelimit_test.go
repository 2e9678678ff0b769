package http_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/beatlive/room-api/internal/handlers"
	httpx "github.com/beatlive/room-api/internal/http"
	"github.com/beatlive/room-api/internal/idgen"
	"github.com/beatlive/room-api/internal/repo"
	"github.com/beatlive/room-api/internal/service"
)

type tokenGen struct{}

func (tokenGen) New() string { return idgen.NewToken() }

func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	ctx := context.Background()
	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		t.Skipf("could not start redis container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{
		Addr:        endpoint,
		DialTimeout: 5 * time.Second,
	})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(ctx).Err())
	return client
}

func TestRateLimiter_Allow(t *testing.T) {
	client := setupRedis(t)
	limiter := httpx.NewRateLimiter(client, 3, 1)
	ctx := context.Background()

	// 容量ぶんは連続で許可される
	for i := 0; i < 3; i++ {
		allowed, err := limiter.Allow(ctx, "user-a")
		require.NoError(t, err)
		assert.True(t, allowed, "request %d within capacity", i+1)
	}

	// バケットが空になったら拒否
	allowed, err := limiter.Allow(ctx, "user-a")
	require.NoError(t, err)
	assert.False(t, allowed)

	// 別のキーには影響しない
	allowed, err = limiter.Allow(ctx, "user-b")
	require.NoError(t, err)
	assert.True(t, allowed)

	// 補充後はまた許可される
	time.Sleep(1100 * time.Millisecond)
	allowed, err = limiter.Allow(ctx, "user-a")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestRateLimiter_Middleware(t *testing.T) {
	client := setupRedis(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := repo.NewMemoryStore()
	users := service.NewUserService(store, tokenGen{}, logger)
	hub := handlers.NewRoomHub()
	rooms := service.NewRoomService(store, users, hub, 4, logger)
	limiter := httpx.NewRateLimiter(client, 2, 1)

	router := httpx.NewRouter(
		handlers.NewUserHandler(users, logger),
		handlers.NewRoomHandler(rooms, logger),
		handlers.NewWebSocketHandler(users, hub, logger),
		limiter,
		nil,
	)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	get := func(token string) int {
		req, err := http.NewRequest(http.MethodGet, srv.URL+"/healthz", nil)
		require.NoError(t, err)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		resp, err := srv.Client().Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}

	assert.Equal(t, http.StatusOK, get("tok-1"))
	assert.Equal(t, http.StatusOK, get("tok-1"))
	assert.Equal(t, http.StatusTooManyRequests, get("tok-1"))

	// トークン単位の限流なので別トークンは通る
	assert.Equal(t, http.StatusOK, get("tok-2"))
}
