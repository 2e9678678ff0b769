// Package http はルーティングとミドルウェアの構成を担当します
package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/beatlive/room-api/internal/handlers"
)

// NewRouter はアプリケーションのHTTPルーターを構築します
// limiter が nil の場合は限流なしで構成します（テスト用）。
func NewRouter(uh *handlers.UserHandler, rh *handlers.RoomHandler, wsh *handlers.WebSocketHandler, limiter *RateLimiter, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)

	if len(allowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   allowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	if limiter != nil {
		r.Use(limiter.Middleware)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	r.Route("/user", func(r chi.Router) {
		r.Post("/create", uh.Create)
		r.Get("/me", uh.Me)
		r.Post("/update", uh.Update)
	})

	r.Route("/room", func(r chi.Router) {
		r.Post("/create", rh.Create)
		r.Post("/list", rh.List)
		r.Post("/join", rh.Join)
		r.Post("/wait", rh.Wait)
		r.Post("/start", rh.Start)
		r.Post("/leave", rh.Leave)
		r.Post("/end", rh.End)
		r.Post("/result", rh.Result)
		// 待機中のクライアント向けのイベント配信
		r.Get("/{roomID}/ws", wsh.Watch)
	})

	return r
}
