package transport

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Message 推送给仪表盘客户端的消息
type Message struct {
	Type      string      `json:"type"`
	Payload   interface{} `json:"payload"`
	Timestamp int64       `json:"timestamp"`
}

// wsClient 单个 WebSocket 连接
type wsClient struct {
	id   string
	conn *websocket.Conn
	send chan Message
}

// Hub WebSocket 推送中心
// 把会话事件（风险变化、报警、SOS）广播给全部已连接的仪表盘客户端
type Hub struct {
	logger   *zap.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]*wsClient
	closed  bool
}

// NewHub 创建推送中心
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		clients: make(map[string]*wsClient),
	}
}

// HandleWS 处理 WebSocket 升级请求
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed",
			zap.Error(err),
		)
		return
	}

	client := &wsClient{
		id:   uuid.New().String(),
		conn: conn,
		send: make(chan Message, 64),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[client.id] = client
	count := len(h.clients)
	h.mu.Unlock()

	h.logger.Info("Dashboard client connected",
		zap.String("client_id", client.id),
		zap.Int("client_count", count),
	)

	go h.writeLoop(client)
	go h.readLoop(client)
}

// Broadcast 向全部客户端广播一条消息
// 发送缓冲已满的慢客户端丢弃本条消息，不阻塞广播方
func (h *Hub) Broadcast(msgType string, payload interface{}) {
	msg := Message{
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now().Unix(),
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		select {
		case client.send <- msg:
		default:
			h.logger.Debug("Dropped message for slow client",
				zap.String("client_id", client.id),
				zap.String("type", msgType),
			)
		}
	}
}

// Close 关闭全部连接（服务停止时调用）
// 只关闭发送通道，关闭帧由各连接的 writeLoop 补发：
// 连接上的全部写操作必须留在 writeLoop 内
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*wsClient, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	h.clients = make(map[string]*wsClient)
	h.mu.Unlock()

	for _, client := range clients {
		close(client.send)
	}
}

// writeLoop 把消息写入连接，发送通道关闭后补发关闭帧再断开
// 本 goroutine 是该连接上唯一的写方
func (h *Hub) writeLoop(client *wsClient) {
	for msg := range client.send {
		if err := client.conn.WriteJSON(msg); err != nil {
			h.logger.Debug("Write failed, dropping client",
				zap.String("client_id", client.id),
				zap.Error(err),
			)
			h.remove(client)
			return
		}
	}

	client.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	client.conn.Close()
}

// readLoop 消费入站帧以侦测连接关闭（客户端不发送业务数据）
func (h *Hub) readLoop(client *wsClient) {
	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("Unexpected close",
					zap.String("client_id", client.id),
					zap.Error(err),
				)
			}
			h.remove(client)
			return
		}
	}
}

// remove 摘除一个客户端（幂等）
func (h *Hub) remove(client *wsClient) {
	h.mu.Lock()
	if _, ok := h.clients[client.id]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, client.id)
	h.mu.Unlock()

	client.conn.Close()
	close(client.send)
}
