package webserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/ichi0g0y/thermal-receipt/internal/connection"
	"github.com/ichi0g0y/thermal-receipt/internal/device"
	"github.com/ichi0g0y/thermal-receipt/internal/printerr"
	"github.com/ichi0g0y/thermal-receipt/internal/shared/logger"
	"github.com/ichi0g0y/thermal-receipt/internal/status"
	"go.uber.org/zap"
)

const recentEventLimit = 20

type ScanResponse struct {
	Devices  []device.Identity `json:"devices"`
	Scanning bool              `json:"scanning"`
	Status   string            `json:"status"`
}

type PendingJobInfo struct {
	ID        string    `json:"id"`
	Bytes     int       `json:"bytes"`
	CreatedAt time.Time `json:"created_at"`
}

type StatusResponse struct {
	State        string           `json:"state"`
	Connected    bool             `json:"connected"`
	Selected     *device.Identity `json:"selected,omitempty"`
	Active       *device.Identity `json:"active,omitempty"`
	Pending      *PendingJobInfo  `json:"pending,omitempty"`
	Profile      string           `json:"profile"`
	PaperSize    string           `json:"paper_size"`
	CharsPerLine int              `json:"chars_per_line"`
	QueueSize    int              `json:"queue_size"`
	Events       []status.Event   `json:"events"`
}

type deviceRequest struct {
	Name      string `json:"name"`
	VendorID  string `json:"vendorId"`
	ProductID string `json:"productId"`
}

func (r deviceRequest) identity() (device.Identity, error) {
	if r.VendorID == "" || r.ProductID == "" {
		return device.Identity{}, errors.New("vendorId and productId are required")
	}
	return device.New(r.Name, r.VendorID, r.ProductID), nil
}

// statusCode は印刷エラーの種類をHTTPステータスに変換する
func statusCode(err error) int {
	switch printerr.KindOf(err) {
	case printerr.KindInvalidOperation:
		return http.StatusConflict
	case printerr.KindLayout, printerr.KindImage:
		return http.StatusBadRequest
	case printerr.KindConnect, printerr.KindSend, printerr.KindDiscovery:
		return http.StatusBadGateway
	}
	if errors.Is(err, connection.ErrStopped) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// handlePrinterScan はプリンターのスキャンを開始し、結果を返す
//
//	POST /api/printer/scan            新しいスキャンを開始
//	POST /api/printer/scan?wait=true  スキャン終了まで待機して結果を返す
//	GET  /api/printer/scan            現在のスキャン結果
func (s *Server) handlePrinterScan(w http.ResponseWriter, r *http.Request) {
	if s.deps.Scanner == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("scanner not available"))
		return
	}

	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, scanResponse(s.currentFound(), s.scanning()))

	case http.MethodPost:
		logger.Info("Starting printer scan via API")
		sess := s.deps.Scanner.Restart(context.Background(), s.deps.Filter)

		if r.URL.Query().Get("wait") == "true" {
			select {
			case <-sess.Done():
			case <-r.Context().Done():
				return
			}
		}
		writeJSON(w, http.StatusOK, scanResponse(sess.Found(), sess.Scanning()))

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) currentFound() []device.Identity {
	if sess := s.deps.Scanner.Current(); sess != nil {
		return sess.Found()
	}
	return nil
}

func (s *Server) scanning() bool {
	sess := s.deps.Scanner.Current()
	return sess != nil && sess.Scanning()
}

func scanResponse(found []device.Identity, scanning bool) ScanResponse {
	if found == nil {
		found = []device.Identity{}
	}
	st := "completed"
	if scanning {
		st = "scanning"
	}
	return ScanResponse{Devices: found, Scanning: scanning, Status: st}
}

// handlePrinterStatus は接続状態と保留中ジョブを返す
func (s *Server) handlePrinterStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snap, err := s.deps.Connection.Snapshot(r.Context())
	if err != nil {
		writeError(w, statusCode(err), err)
		return
	}

	resp := StatusResponse{
		State:     snap.State.String(),
		Connected: snap.State == connection.Connected,
		Selected:  snap.Selected,
		Active:    snap.Active,
		Events:    []status.Event{},
	}
	if snap.Pending != nil {
		resp.Pending = &PendingJobInfo{
			ID:        snap.Pending.ID,
			Bytes:     len(snap.Pending.Data),
			CreatedAt: snap.Pending.CreatedAt,
		}
	}
	if s.deps.Printer != nil {
		p := s.deps.Printer.Profile()
		resp.Profile = p.Name
		resp.PaperSize = p.PaperSize
		resp.CharsPerLine = p.CharsPerLine
		resp.QueueSize = s.deps.Printer.QueueSize()
	}
	if s.deps.Board != nil {
		resp.Events = s.deps.Board.Recent(recentEventLimit)
	}

	writeJSON(w, http.StatusOK, resp)
}

// handlePrinterSelect は接続対象のプリンターを選択する
func (s *Server) handlePrinterSelect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req deviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	dev, err := req.identity()
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := s.deps.Connection.Select(r.Context(), dev); err != nil {
		writeError(w, statusCode(err), err)
		return
	}

	logger.Info("Printer selected via API", zap.Stringer("device", dev))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"selected": dev,
	})
}

// handlePrinterConnect は選択中のプリンターに接続する
// リクエストボディにデバイスが含まれる場合は先に選択する
func (s *Server) handlePrinterConnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req deviceRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid JSON", http.StatusBadRequest)
			return
		}
	}
	if req.VendorID != "" || req.ProductID != "" {
		dev, err := req.identity()
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if err := s.deps.Connection.Select(r.Context(), dev); err != nil {
			writeError(w, statusCode(err), err)
			return
		}
	}

	s.connectAndRespond(w, r.Context(), s.deps.Connection.Connect)
}

func (s *Server) connectAndRespond(w http.ResponseWriter, ctx context.Context, connect func(context.Context) error) {
	if err := connect(ctx); err != nil {
		logger.Warn("Printer connect via API failed", zap.Error(err))
		writeError(w, statusCode(err), err)
		return
	}

	snap, err := s.deps.Connection.Snapshot(ctx)
	if err != nil {
		writeError(w, statusCode(err), err)
		return
	}
	s.rememberPrinter(snap.Active)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"connected": snap.State == connection.Connected,
		"active":    snap.Active,
	})
}

// rememberPrinter は接続に成功したプリンターを保存済みリストに追加する
func (s *Server) rememberPrinter(dev *device.Identity) {
	if s.deps.Saved == nil || dev == nil {
		return
	}
	if _, err := s.deps.Saved.Add(*dev); err != nil {
		logger.Warn("Failed to save printer", zap.Stringer("device", *dev), zap.Error(err))
	}
}

// handlePrinterDisconnect はプリンターから切断する
func (s *Server) handlePrinterDisconnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := s.deps.Connection.Disconnect(r.Context()); err != nil {
		writeError(w, statusCode(err), err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"connected": false,
	})
}

// handleSavedPrinters は保存済みプリンターの一覧・追加・削除を行う
func (s *Server) handleSavedPrinters(w http.ResponseWriter, r *http.Request) {
	if s.deps.Saved == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("saved printers not available"))
		return
	}

	var (
		list []device.Identity
		err  error
	)

	switch r.Method {
	case http.MethodGet:
		list, err = s.deps.Saved.Load()

	case http.MethodPost, http.MethodDelete:
		var req deviceRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid JSON", http.StatusBadRequest)
			return
		}
		dev, idErr := req.identity()
		if idErr != nil {
			writeError(w, http.StatusBadRequest, idErr)
			return
		}
		if r.Method == http.MethodPost {
			list, err = s.deps.Saved.Add(dev)
		} else {
			list, err = s.deps.Saved.Remove(dev)
		}

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err != nil {
		logger.Error("Saved printers request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if list == nil {
		list = []device.Identity{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"printers": list})
}
