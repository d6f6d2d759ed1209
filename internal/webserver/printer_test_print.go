package webserver

import (
	"errors"
	"io"
	"net/http"

	"github.com/ichi0g0y/thermal-receipt/internal/output"
	"github.com/ichi0g0y/thermal-receipt/internal/printerr"
	"github.com/ichi0g0y/thermal-receipt/internal/receipt"
	"github.com/ichi0g0y/thermal-receipt/internal/shared/logger"
	"go.uber.org/zap"
)

const maxDocumentBytes = 8 << 20

// handlePrinterTestPrint はテストレシートを印刷する
func (s *Server) handlePrinterTestPrint(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.deps.Printer == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("printer not available"))
		return
	}

	logger.Info("Starting test print via API")
	s.respondPrint(w, s.deps.Printer.PrintTest(r.Context()))
}

// handlePrint はJSONドキュメントを印刷する
//
//	POST /api/printer/print             すぐに送信
//	POST /api/printer/print?queue=true  印刷キューに追加
func (s *Server) handlePrint(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.deps.Printer == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("printer not available"))
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxDocumentBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	doc, err := receipt.DecodeJSON(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if r.URL.Query().Get("queue") == "true" {
		id, err := s.deps.Printer.Enqueue(doc)
		if err != nil {
			code := http.StatusInternalServerError
			if errors.Is(err, output.ErrQueueFull) {
				code = http.StatusServiceUnavailable
			}
			writeError(w, code, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]interface{}{
			"success": true,
			"job_id":  id,
			"queued":  true,
		})
		return
	}

	s.respondPrint(w, s.deps.Printer.Print(r.Context(), doc))
}

// respondPrint は印刷結果を返す
// 未接続で保留されたジョブは接続時に送信されるため 202 を返す
func (s *Server) respondPrint(w http.ResponseWriter, err error) {
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"message": "Printed",
		})
	case errors.Is(err, printerr.ErrNotConnected):
		writeJSON(w, http.StatusAccepted, map[string]interface{}{
			"success": false,
			"pending": true,
			"message": "Printer not connected, job will be printed on reconnect",
		})
	default:
		logger.Error("Print request failed", zap.Error(err))
		writeError(w, statusCode(err), err)
	}
}
