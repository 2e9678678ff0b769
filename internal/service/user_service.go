// Package service はビジネスロジックを担当します
// ルームのライフサイクル管理とユーザー認証の解決を提供します
package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/beatlive/room-api/internal/models"
	"github.com/beatlive/room-api/internal/repo"
)

// TokenGenerator は認証トークンを生成するインターフェース
type TokenGenerator interface {
	New() string
}

// UserService はユーザーの登録・参照・更新を提供します
// 他のサービスからは Identity Provider（token → User の解決）として使われます。
type UserService struct {
	store  repo.Store
	tokens TokenGenerator
	logger *slog.Logger
}

func NewUserService(store repo.Store, tokens TokenGenerator, logger *slog.Logger) *UserService {
	return &UserService{store: store, tokens: tokens, logger: logger}
}

// Create は新規ユーザーを登録し、認証トークンを返します
// トークンが既存のものと衝突した場合は再生成して再挿入します（最大10回）。
func (s *UserService) Create(ctx context.Context, name string, leaderCardID int64) (string, error) {
	const maxRetries = 10

	for i := 0; i < maxRetries; i++ {
		token := s.tokens.New()
		err := s.store.InTx(ctx, func(tx repo.Tx) error {
			_, err := tx.InsertUser(ctx, name, token, leaderCardID)
			return err
		})
		if err == nil {
			return token, nil
		}
		if !errors.Is(err, repo.ErrUniqueViolation) {
			return "", err
		}
		s.logger.Warn("token collision, regenerating", "attempt", i+1)
	}
	return "", ErrTokenGenerationFailed
}

// Resolve はトークンからユーザーを解決します
// 解決できない場合は ErrInvalidToken を返します。結果はキャッシュしません。
func (s *UserService) Resolve(ctx context.Context, token string) (models.User, error) {
	var user models.User
	err := s.store.InTx(ctx, func(tx repo.Tx) error {
		u, ok, err := tx.GetUserByToken(ctx, token)
		if err != nil {
			return err
		}
		if !ok {
			return ErrInvalidToken
		}
		user = u
		return nil
	})
	if err != nil {
		return models.User{}, err
	}
	return user, nil
}

// Update はユーザーの表示名とリーダーカードを更新します
func (s *UserService) Update(ctx context.Context, token, name string, leaderCardID int64) error {
	return s.store.InTx(ctx, func(tx repo.Tx) error {
		if _, ok, err := tx.GetUserByToken(ctx, token); err != nil {
			return err
		} else if !ok {
			return ErrInvalidToken
		}
		return tx.UpdateUserByToken(ctx, token, name, leaderCardID)
	})
}
