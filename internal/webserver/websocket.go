package webserver

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ichi0g0y/thermal-receipt/internal/shared/logger"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"go.uber.org/zap"
)

// WSMessage はWebSocketメッセージの構造を定義
type WSMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// WSClient はWebSocket接続クライアントを表す
type WSClient struct {
	hub         *WSHub
	conn        *websocket.Conn
	send        chan []byte
	clientID    string
	connectedAt time.Time
}

// WSHub はすべてのWebSocket接続を管理
type WSHub struct {
	clients    map[*WSClient]bool
	register   chan *WSClient
	unregister chan *WSClient
	broadcast  chan WSMessage
	done       chan struct{}
	mu         sync.RWMutex
}

var wsUpgrader = websocket.Upgrader{
	// ローカルネットワーク内での利用を想定して全てのオリジンを許可
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

func NewWSHub() *WSHub {
	return &WSHub{
		clients:    make(map[*WSClient]bool),
		register:   make(chan *WSClient),
		unregister: make(chan *WSClient),
		broadcast:  make(chan WSMessage, 256),
		done:       make(chan struct{}),
	}
}

// Run dispatches messages until ctx is cancelled, then closes every client.
func (h *WSHub) Run(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	defer h.closeAll()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()

			logger.Info("WebSocket client connected",
				zap.String("clientId", client.clientID),
				zap.Int("total_clients", total))

			// 接続確認メッセージを送信
			if data, err := encodeMessage("connected", map[string]string{"clientId": client.clientID}); err == nil {
				select {
				case client.send <- data:
				default:
				}
			}

		case client := <-h.unregister:
			h.remove(client)

		case message := <-h.broadcast:
			data, err := json.Marshal(message)
			if err != nil {
				logger.Error("Failed to marshal WebSocket message", zap.Error(err))
				continue
			}

			var slow []*WSClient
			h.mu.RLock()
			for client := range h.clients {
				select {
				case client.send <- data:
				default:
					slow = append(slow, client)
				}
			}
			h.mu.RUnlock()

			// クライアントのバッファがフルの場合は切断
			for _, c := range slow {
				h.remove(c)
			}

		case <-ticker.C:
			logger.Debug("WebSocket heartbeat", zap.Int("clients", h.ClientCount()))
		}
	}
}

func (h *WSHub) remove(client *WSClient) {
	h.mu.Lock()
	_, ok := h.clients[client]
	if ok {
		delete(h.clients, client)
		close(client.send)
	}
	remaining := len(h.clients)
	h.mu.Unlock()

	if ok {
		logger.Info("WebSocket client disconnected",
			zap.String("clientId", client.clientID),
			zap.Int("remaining_clients", remaining))
	}
}

func (h *WSHub) closeAll() {
	close(h.done)

	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		delete(h.clients, client)
		close(client.send)
	}
}

// ClientCount returns the number of connected clients.
func (h *WSHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast すべてのクライアントにメッセージを送信
func (h *WSHub) Broadcast(msgType string, data interface{}) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		logger.Error("Failed to marshal WebSocket broadcast data", zap.Error(err))
		return
	}

	select {
	case h.broadcast <- WSMessage{Type: msgType, Data: jsonData}:
	default:
		logger.Warn("WebSocket broadcast channel full, message dropped",
			zap.String("message_type", msgType))
	}
}

func encodeMessage(msgType string, data interface{}) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(WSMessage{Type: msgType, Data: raw})
}

// handleWS WebSocket接続を処理
func (h *WSHub) handleWS(w http.ResponseWriter, r *http.Request) {
	clientID := r.URL.Query().Get("clientId")
	if clientID == "" {
		id, err := gonanoid.New()
		if err != nil {
			http.Error(w, "Failed to create client id", http.StatusInternalServerError)
			return
		}
		clientID = "ws-" + id
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("Failed to upgrade to WebSocket", zap.Error(err))
		return
	}

	client := &WSClient{
		hub:         h,
		conn:        conn,
		send:        make(chan []byte, 256),
		clientID:    clientID,
		connectedAt: time.Now(),
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

func (c *WSClient) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Debug("WebSocket read error", zap.Error(err))
			}
			break
		}

		logger.Debug("Received WebSocket message from client",
			zap.String("clientId", c.clientID),
			zap.String("message", string(message)))
	}
}

func (c *WSClient) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
