package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// tokenBucketScript は令牌バケットをRedis上で原子的に更新するLuaスクリプト
// GET → 判定 → INCR を個別に行うと他のリクエストが割り込むため、
// 必ず単一スクリプトで実行します。
//
// KEYS[1]: バケットのキー
// ARGV[1]: 容量
// ARGV[2]: 毎秒の補充数
// ARGV[3]: 現在時刻（Unix秒）
var tokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local refill_rate = tonumber(ARGV[2])
local now = tonumber(ARGV[3])

local tokens = tonumber(redis.call('GET', key .. ':tokens') or capacity)
local last_refill = tonumber(redis.call('GET', key .. ':last_refill') or now)

local elapsed = math.max(0, now - last_refill)
tokens = math.min(capacity, tokens + elapsed * refill_rate)

if tokens >= 1 then
    tokens = tokens - 1
    redis.call('SET', key .. ':tokens', tokens)
    redis.call('SET', key .. ':last_refill', now)
    redis.call('EXPIRE', key .. ':tokens', 3600)
    redis.call('EXPIRE', key .. ':last_refill', 3600)
    return 1
end
return 0
`)

// RateLimiter はRedisを使った分散令牌バケット限流器です
// 複数インスタンスで起動してもレートを共有できます。
type RateLimiter struct {
	client     *redis.Client
	capacity   int64
	refillRate int64
}

func NewRateLimiter(client *redis.Client, capacity, refillRate int64) *RateLimiter {
	return &RateLimiter{client: client, capacity: capacity, refillRate: refillRate}
}

// Allow は key に対するリクエストを許可するか判定します
func (l *RateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	res, err := tokenBucketScript.Run(ctx, l.client,
		[]string{"ratelimit:" + key},
		l.capacity, l.refillRate, time.Now().Unix()).Int64()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}

// Middleware はリクエストを認証トークン（なければIP）単位で限流します
// Redisに到達できない場合は可用性を優先してリクエストを通します。
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := rateLimitKey(r)

		ctx, cancel := context.WithTimeout(r.Context(), 100*time.Millisecond)
		allowed, err := l.Allow(ctx, key)
		cancel()
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}
		if !allowed {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"message":"too many requests"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func rateLimitKey(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return "token:" + strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return "ip:" + r.RemoteAddr
}
