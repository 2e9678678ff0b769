// Package idgen は各種識別子の生成を提供します
package idgen

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewToken はユーザー認証トークンを生成します
// UUID4 の衝突確率は天文学的に低いが、保存時の一意制約違反に備えて
// 呼び出し側で上限付きリトライすること。
func NewToken() string {
	return uuid.NewString()
}

// NewConnID は WebSocket 接続の識別子を生成します
func NewConnID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now().UTC()), entropy).String()
}
