package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/beatlive/room-api/internal/models"
	"github.com/beatlive/room-api/internal/service"
)

// RoomHandler はルーム関連のエンドポイントを処理します
type RoomHandler struct {
	svc    *service.RoomService
	logger *slog.Logger
}

func NewRoomHandler(s *service.RoomService, logger *slog.Logger) *RoomHandler {
	return &RoomHandler{svc: s, logger: logger}
}

type roomCreateRequest struct {
	LiveID           int64                 `json:"live_id"`
	SelectDifficulty models.LiveDifficulty `json:"select_difficulty"`
}

type roomIDResponse struct {
	RoomID int64 `json:"room_id"`
}

type roomListRequest struct {
	LiveID int64 `json:"live_id"`
}

type roomListResponse struct {
	RoomInfoList []models.RoomInfo `json:"room_info_list"`
}

type roomJoinRequest struct {
	RoomID           int64                 `json:"room_id"`
	SelectDifficulty models.LiveDifficulty `json:"select_difficulty"`
}

type roomJoinResponse struct {
	JoinRoomResult models.JoinRoomResult `json:"join_room_result"`
}

type roomIDRequest struct {
	RoomID int64 `json:"room_id"`
}

type roomWaitResponse struct {
	Status       models.WaitRoomStatus `json:"status"`
	RoomUserList []models.RoomUser     `json:"room_user_list"`
}

type roomEndRequest struct {
	RoomID         int64   `json:"room_id"`
	JudgeCountList []int64 `json:"judge_count_list"`
	Score          int64   `json:"score"`
}

type roomResultResponse struct {
	ResultUserList []models.ResultUser `json:"result_user_list"`
}

// Create はルーム作成リクエストを処理します
func (h *RoomHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in roomCreateRequest
	if !decodeJSON(w, r, &in) {
		return
	}
	if err := validateDifficulty(in.SelectDifficulty); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	roomID, err := h.svc.Create(r.Context(), bearerToken(r), in.LiveID, in.SelectDifficulty)
	if err != nil {
		h.logger.Error("create room failed", "live_id", in.LiveID, "error", err)
		h.writeServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, roomIDResponse{RoomID: roomID})
}

// List はルーム一覧リクエストを処理します
// 認証は不要です
func (h *RoomHandler) List(w http.ResponseWriter, r *http.Request) {
	var in roomListRequest
	if !decodeJSON(w, r, &in) {
		return
	}

	infos, err := h.svc.List(r.Context(), in.LiveID)
	if err != nil {
		h.logger.Error("list rooms failed", "live_id", in.LiveID, "error", err)
		h.writeServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, roomListResponse{RoomInfoList: infos})
}

// Join はルーム入場リクエストを処理します
// 満員・解散はエラーではなく join_room_result で返します
func (h *RoomHandler) Join(w http.ResponseWriter, r *http.Request) {
	var in roomJoinRequest
	if !decodeJSON(w, r, &in) {
		return
	}
	if err := validateRoomID(in.RoomID); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := validateDifficulty(in.SelectDifficulty); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.svc.Join(r.Context(), bearerToken(r), in.RoomID, in.SelectDifficulty)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, roomJoinResponse{JoinRoomResult: result})
}

// Wait は待機ポーリングリクエストを処理します
func (h *RoomHandler) Wait(w http.ResponseWriter, r *http.Request) {
	var in roomIDRequest
	if !decodeJSON(w, r, &in) {
		return
	}
	if err := validateRoomID(in.RoomID); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	status, users, err := h.svc.Wait(r.Context(), bearerToken(r), in.RoomID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, roomWaitResponse{Status: status, RoomUserList: users})
}

// Start はライブ開始リクエストを処理します
func (h *RoomHandler) Start(w http.ResponseWriter, r *http.Request) {
	var in roomIDRequest
	if !decodeJSON(w, r, &in) {
		return
	}
	if err := validateRoomID(in.RoomID); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.svc.Start(r.Context(), bearerToken(r), in.RoomID); err != nil {
		h.writeServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, struct{}{})
}

// Leave は退出リクエストを処理します
func (h *RoomHandler) Leave(w http.ResponseWriter, r *http.Request) {
	var in roomIDRequest
	if !decodeJSON(w, r, &in) {
		return
	}
	if err := validateRoomID(in.RoomID); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.svc.Leave(r.Context(), bearerToken(r), in.RoomID); err != nil {
		h.writeServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, struct{}{})
}

// End はリザルト提出リクエストを処理します
func (h *RoomHandler) End(w http.ResponseWriter, r *http.Request) {
	var in roomEndRequest
	if !decodeJSON(w, r, &in) {
		return
	}
	if err := validateRoomID(in.RoomID); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.svc.End(r.Context(), bearerToken(r), in.RoomID, in.JudgeCountList, in.Score); err != nil {
		h.writeServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, struct{}{})
}

// Result はリザルト取得リクエストを処理します
func (h *RoomHandler) Result(w http.ResponseWriter, r *http.Request) {
	var in roomIDRequest
	if !decodeJSON(w, r, &in) {
		return
	}
	if err := validateRoomID(in.RoomID); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	results, err := h.svc.Result(r.Context(), bearerToken(r), in.RoomID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, roomResultResponse{ResultUserList: results})
}

func (h *RoomHandler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidToken):
		respondError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, service.ErrRoomNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}
