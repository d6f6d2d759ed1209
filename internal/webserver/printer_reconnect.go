package webserver

import (
	"net/http"

	"github.com/ichi0g0y/thermal-receipt/internal/shared/logger"
)

// handlePrinterReconnect プリンターへの再接続を強制的に実行
// 接続中であれば一度切断してから、選択中のプリンターに接続し直す。
// 明示的な切断と違い、保留中の印刷ジョブは破棄せず再接続後に再送される
func (s *Server) handlePrinterReconnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	logger.Info("Starting printer reconnection")
	s.connectAndRespond(w, r.Context(), s.deps.Connection.Reconnect)
}
