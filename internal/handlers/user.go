package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/beatlive/room-api/internal/service"
)

// UserHandler はユーザー関連のエンドポイントを処理します
type UserHandler struct {
	svc    *service.UserService
	logger *slog.Logger
}

func NewUserHandler(s *service.UserService, logger *slog.Logger) *UserHandler {
	return &UserHandler{svc: s, logger: logger}
}

type userCreateRequest struct {
	UserName     string `json:"user_name"`
	LeaderCardID int64  `json:"leader_card_id"`
}

type userCreateResponse struct {
	UserToken string `json:"user_token"`
}

// Create は新規ユーザーを登録し、認証トークンを返します
func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in userCreateRequest
	if !decodeJSON(w, r, &in) {
		return
	}
	if err := validateUserName(in.UserName); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	token, err := h.svc.Create(r.Context(), in.UserName, in.LeaderCardID)
	if err != nil {
		h.logger.Error("create user failed", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	respondJSON(w, http.StatusOK, userCreateResponse{UserToken: token})
}

// Me は認証済みユーザー自身の情報を返します
// 認証の動作確認用。ゲームクライアントは使いません。
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.svc.Resolve(r.Context(), bearerToken(r))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, user)
}

// Update はユーザーの表示名とリーダーカードを更新します
func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	var in userCreateRequest
	if !decodeJSON(w, r, &in) {
		return
	}
	if err := validateUserName(in.UserName); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.svc.Update(r.Context(), bearerToken(r), in.UserName, in.LeaderCardID); err != nil {
		h.logger.Error("update user failed", "error", err)
		h.writeServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, struct{}{})
}

func (h *UserHandler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidToken):
		respondError(w, http.StatusUnauthorized, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}
