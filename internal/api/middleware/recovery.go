package middleware

import (
	"net/http"
	"runtime/debug"

	"go.uber.org/zap"

	"p2pdesk/pkg/utils"
)

// Recovery - middleware восстановления после паники в handlers
//
// Перехватывает panic, логирует stack trace и отвечает 500, не роняя
// сервер. Текст паники клиенту не раскрывается.
func Recovery(next http.Handler) http.Handler {
	log := utils.GetGlobalLogger().WithComponent("http")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				log.Error("panic in handler",
					zap.Any("panic", err),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.ByteString("stack", debug.Stack()),
				)

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte(`{"error":"Internal server error"}`))
			}
		}()

		next.ServeHTTP(w, r)
	})
}
