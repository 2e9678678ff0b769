package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/beatlive/room-api/internal/idgen"
	"github.com/beatlive/room-api/internal/service"
)

// RoomHub は部屋ごとのWebSocket接続を管理します
// service.Notifier を実装し、Coordinator の操作で発生したイベントを
// 待機中のクライアントへ配信します。あくまで補助であり、
// /room/wait のポーリングが常に正です。
type RoomHub struct {
	rooms map[int64]*watchRoom
	mu    sync.RWMutex
}

type watchRoom struct {
	clients map[string]*watchClient // 接続ID -> クライアント
	mu      sync.RWMutex
}

type watchClient struct {
	connID  string
	userID  int64
	conn    *websocket.Conn
	writeMu sync.Mutex // gorilla/websocket は並行書き込み不可
}

func NewRoomHub() *RoomHub {
	return &RoomHub{rooms: make(map[int64]*watchRoom)}
}

// Publish はルームの全接続へイベントを配信します
// 送信に失敗した接続は切断してハブから除去します。
func (h *RoomHub) Publish(roomID int64, event service.RoomEvent) {
	h.mu.RLock()
	room := h.rooms[roomID]
	h.mu.RUnlock()
	if room == nil {
		return
	}

	room.mu.RLock()
	clients := make([]*watchClient, 0, len(room.clients))
	for _, c := range room.clients {
		clients = append(clients, c)
	}
	room.mu.RUnlock()

	for _, c := range clients {
		c.writeMu.Lock()
		err := c.conn.WriteJSON(event)
		c.writeMu.Unlock()
		if err != nil {
			_ = c.conn.Close()
			h.remove(roomID, c.connID)
		}
	}
}

func (h *RoomHub) add(roomID int64, c *watchClient) {
	h.mu.Lock()
	room := h.rooms[roomID]
	if room == nil {
		room = &watchRoom{clients: make(map[string]*watchClient)}
		h.rooms[roomID] = room
	}
	h.mu.Unlock()

	room.mu.Lock()
	room.clients[c.connID] = c
	room.mu.Unlock()
}

func (h *RoomHub) remove(roomID int64, connID string) {
	h.mu.RLock()
	room := h.rooms[roomID]
	h.mu.RUnlock()
	if room == nil {
		return
	}

	room.mu.Lock()
	delete(room.clients, connID)
	empty := len(room.clients) == 0
	room.mu.Unlock()

	if empty {
		h.mu.Lock()
		if r := h.rooms[roomID]; r != nil {
			r.mu.RLock()
			stillEmpty := len(r.clients) == 0
			r.mu.RUnlock()
			if stillEmpty {
				delete(h.rooms, roomID)
			}
		}
		h.mu.Unlock()
	}
}

// WebSocketHandler はルーム監視のWebSocket接続を処理します
type WebSocketHandler struct {
	identity service.IdentityProvider
	hub      *RoomHub
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

func NewWebSocketHandler(identity service.IdentityProvider, hub *RoomHub, logger *slog.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		identity: identity,
		hub:      hub,
		logger:   logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// OriginチェックはCORS設定側で行う前提
				return true
			},
		},
	}
}

// Watch はクライアントをルームの監視に登録します
// 切断されるまで接続を維持し、受信したメッセージは読み捨てます。
func (h *WebSocketHandler) Watch(w http.ResponseWriter, r *http.Request) {
	roomID, err := strconv.ParseInt(chi.URLParam(r, "roomID"), 10, 64)
	if err != nil || roomID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid room id")
		return
	}

	// ブラウザのWebSocket APIはヘッダーを付けられないためクエリで受ける
	token := r.URL.Query().Get("token")
	user, err := h.identity.Resolve(r.Context(), token)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "invalid token")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "room_id", roomID, "error", err)
		return
	}

	client := &watchClient{
		connID: idgen.NewConnID(),
		userID: user.ID,
		conn:   conn,
	}
	h.hub.add(roomID, client)
	h.logger.Info("watch connected", "room_id", roomID, "user_id", user.ID, "conn_id", client.connID)

	defer func() {
		h.hub.remove(roomID, client.connID)
		_ = conn.Close()
		h.logger.Info("watch disconnected", "room_id", roomID, "conn_id", client.connID)
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
