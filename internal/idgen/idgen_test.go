package idgen

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewToken(t *testing.T) {
	token := NewToken()
	_, err := uuid.Parse(token)
	require.NoError(t, err)

	assert.NotEqual(t, token, NewToken())
}

func TestNewConnID(t *testing.T) {
	id := NewConnID()
	_, err := ulid.Parse(id)
	require.NoError(t, err)
}

// 並行生成でも重複しないこと
func TestNewConnID_Concurrent(t *testing.T) {
	const n = 100
	ids := make([]string, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i] = NewConnID()
		}(i)
	}
	wg.Wait()

	seen := make(map[string]struct{}, n)
	for _, id := range ids {
		_, dup := seen[id]
		require.False(t, dup, "duplicate conn id: %s", id)
		seen[id] = struct{}{}
	}
}
