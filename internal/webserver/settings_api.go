package webserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ichi0g0y/thermal-receipt/internal/settings"
	"github.com/ichi0g0y/thermal-receipt/internal/shared/logger"
	"go.uber.org/zap"
)

// handleSettings は設定の取得と更新を行う
//
//	GET  /api/settings
//	POST /api/settings  {"PAPER_SIZE":"80mm","THRESHOLD":"100"}
func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	if s.deps.Settings == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("settings not available"))
		return
	}

	switch r.Method {
	case http.MethodGet:
		all, err := s.deps.Settings.GetAllSettings()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, all)

	case http.MethodPost:
		var req map[string]string
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid JSON", http.StatusBadRequest)
			return
		}

		// 全て検証してから保存する
		for key, value := range req {
			if err := settings.ValidateSetting(key, value); err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
		}
		for key, value := range req {
			if err := s.deps.Settings.SetSetting(key, value); err != nil {
				logger.Error("Failed to save setting", zap.String("key", key), zap.Error(err))
				writeError(w, http.StatusInternalServerError, err)
				return
			}
		}

		logger.Info("Settings updated via API", zap.Int("count", len(req)))
		if s.deps.OnSettingsChanged != nil {
			s.deps.OnSettingsChanged()
		}
		s.hub.Broadcast("settings_updated", req)

		writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}
