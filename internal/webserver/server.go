package webserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ichi0g0y/thermal-receipt/internal/connection"
	"github.com/ichi0g0y/thermal-receipt/internal/device"
	"github.com/ichi0g0y/thermal-receipt/internal/discovery"
	"github.com/ichi0g0y/thermal-receipt/internal/localdb"
	"github.com/ichi0g0y/thermal-receipt/internal/profile"
	"github.com/ichi0g0y/thermal-receipt/internal/receipt"
	"github.com/ichi0g0y/thermal-receipt/internal/settings"
	"github.com/ichi0g0y/thermal-receipt/internal/shared/logger"
	"github.com/ichi0g0y/thermal-receipt/internal/status"
	"github.com/ichi0g0y/thermal-receipt/internal/version"
	"go.uber.org/zap"
)

// Connection is the part of the connection machine the API drives.
type Connection interface {
	Select(ctx context.Context, dev device.Identity) error
	Connect(ctx context.Context) error
	Reconnect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	Snapshot(ctx context.Context) (connection.Snapshot, error)
}

// PrintService compiles and prints documents.
type PrintService interface {
	Print(ctx context.Context, doc receipt.Document) error
	PrintTest(ctx context.Context) error
	Enqueue(doc receipt.Document) (string, error)
	QueueSize() int
	Profile() profile.Profile
}

// Deps はWebサーバーが使用するコンポーネント
type Deps struct {
	Connection Connection
	Scanner    *discovery.Scanner
	Filter     discovery.Filter
	Printer    PrintService
	Board      *status.Board
	Saved      *localdb.SavedPrinters
	Settings   *settings.SettingsManager
	Metrics    http.Handler

	// OnSettingsChanged is called after settings were saved through the API.
	OnSettingsChanged func()
}

// Server はプリンター操作用のHTTP/WebSocketサーバー
type Server struct {
	deps       Deps
	hub        *WSHub
	httpServer *http.Server
}

func New(deps Deps) *Server {
	s := &Server{
		deps: deps,
		hub:  NewWSHub(),
	}

	if deps.Board != nil {
		// ステータスイベントをWebSocketクライアントに中継
		deps.Board.RegisterEventCallback(func(e status.Event) {
			s.hub.Broadcast("printer_event", e)
		})
		deps.Board.RegisterPrinterStatusChangeCallback(func(connected bool) {
			s.hub.Broadcast("printer_connected", map[string]bool{"connected": connected})
		})
	}
	return s
}

// Hub returns the WebSocket hub.
func (s *Server) Hub() *WSHub {
	return s.hub
}

// corsMiddleware adds CORS headers to HTTP handlers
func corsMiddleware(handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		handler(w, r)
	}
}

// Handler returns the router with every route registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Printer API
	mux.HandleFunc("/api/printer/scan", corsMiddleware(s.handlePrinterScan))
	mux.HandleFunc("/api/printer/status", corsMiddleware(s.handlePrinterStatus))
	mux.HandleFunc("/api/printer/select", corsMiddleware(s.handlePrinterSelect))
	mux.HandleFunc("/api/printer/connect", corsMiddleware(s.handlePrinterConnect))
	mux.HandleFunc("/api/printer/disconnect", corsMiddleware(s.handlePrinterDisconnect))
	mux.HandleFunc("/api/printer/reconnect", corsMiddleware(s.handlePrinterReconnect))
	mux.HandleFunc("/api/printer/saved", corsMiddleware(s.handleSavedPrinters))
	mux.HandleFunc("/api/printer/test-print", corsMiddleware(s.handlePrinterTestPrint))
	mux.HandleFunc("/api/printer/print", corsMiddleware(s.handlePrint))

	// Settings API
	mux.HandleFunc("/api/settings", corsMiddleware(s.handleSettings))

	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/ws", s.hub.handleWS)

	if s.deps.Metrics != nil {
		mux.Handle("/metrics", s.deps.Metrics)
	}
	return mux
}

// Start starts the WebSocket hub and the HTTP server. It returns once the
// listener is up or failed to bind.
func (s *Server) Start(ctx context.Context, port int) error {
	go s.hub.Run(ctx)

	addr := fmt.Sprintf(":%d", port)
	logger.Info("Starting web server", zap.String("address", addr))

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		WriteTimeout: 30 * time.Second,
		ReadTimeout:  10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine and wait briefly to check for immediate errors
	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
		close(errChan)
	}()

	select {
	case err := <-errChan:
		if err != nil {
			logger.Error("Failed to start web server", zap.Error(err))
			return fmt.Errorf("failed to start web server on port %d: %w", port, err)
		}
	case <-time.After(100 * time.Millisecond):
		// Server started successfully
	}

	return nil
}

// Shutdown gracefully shuts down the web server
func (s *Server) Shutdown() {
	if s.httpServer == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		logger.Error("Failed to shutdown web server gracefully", zap.Error(err))
	} else {
		logger.Info("Web server shutdown complete")
	}
}

// handleStatus returns the current system status
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")

	connected := false
	if s.deps.Board != nil {
		connected = s.deps.Board.IsPrinterConnected()
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"printerConnected": connected,
		"timestamp":        time.Now().Format("2006-01-02T15:04:05Z"),
		"version":          version.Current(),
	})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Failed to write JSON response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]interface{}{
		"success": false,
		"error":   err.Error(),
	})
}
