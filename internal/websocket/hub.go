package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"quizforge-backend/internal/middleware"
	"quizforge-backend/internal/models"
	"quizforge-backend/internal/progress"
)

// writeWait bounds one frame write so a stalled peer cannot hold up the
// generation that is publishing to it.
const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub mirrors a user's generation frames to every socket that user has open.
// Frames arrive over Redis pub/sub, so a generation running on any instance
// reaches sockets held by any other.
type Hub struct {
	mu          sync.RWMutex
	connections map[uuid.UUID][]*websocket.Conn
	redisClient *redis.Client
	auth        *middleware.JWTAuth
	cancelFuncs map[uuid.UUID]context.CancelFunc
	writeWait   time.Duration
	logger      *zap.Logger
}

// NewHub works without Redis; sockets then only receive SendToUser messages.
func NewHub(redisClient *redis.Client, auth *middleware.JWTAuth, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		connections: make(map[uuid.UUID][]*websocket.Conn),
		redisClient: redisClient,
		auth:        auth,
		cancelFuncs: make(map[uuid.UUID]context.CancelFunc),
		writeWait:   writeWait,
		logger:      logger.With(zap.String("component", "ws_hub")),
	}
}

func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	// Browsers cannot set headers on the upgrade request.
	tokenStr := r.URL.Query().Get("token")
	if tokenStr == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	user, err := h.auth.ParseUser(tokenStr)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	h.registerConnection(user.ID, conn)

	// Keep connection alive and handle disconnect
	go func() {
		defer h.unregisterConnection(user.ID, conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}

func (h *Hub) registerConnection(userID uuid.UUID, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.connections[userID] = append(h.connections[userID], conn)

	// First socket for this user starts the subscription
	if len(h.connections[userID]) == 1 && h.redisClient != nil {
		ctx, cancel := context.WithCancel(context.Background())
		h.cancelFuncs[userID] = cancel
		go h.subscribe(ctx, userID)
	}

	h.logger.Debug("websocket connected", zap.String("user_id", userID.String()), zap.Int("connections", len(h.connections[userID])))
}

func (h *Hub) unregisterConnection(userID uuid.UUID, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conn.Close()

	conns := h.connections[userID]
	for i, c := range conns {
		if c == conn {
			h.connections[userID] = append(conns[:i], conns[i+1:]...)
			break
		}
	}

	if len(h.connections[userID]) == 0 {
		delete(h.connections, userID)
		if cancel, ok := h.cancelFuncs[userID]; ok {
			cancel()
			delete(h.cancelFuncs, userID)
		}
	}

	h.logger.Debug("websocket disconnected", zap.String("user_id", userID.String()))
}

func (h *Hub) subscribe(ctx context.Context, userID uuid.UUID) {
	pubsub := h.redisClient.Subscribe(ctx, progress.Channel(userID))
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			h.broadcast(userID, []byte(msg.Payload))
		}
	}
}

// broadcast holds the write lock: a websocket.Conn allows one writer at a time.
func (h *Hub) broadcast(userID uuid.UUID, data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, conn := range h.connections[userID] {
		conn.SetWriteDeadline(time.Now().Add(h.writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.logger.Warn("websocket write failed", zap.String("user_id", userID.String()), zap.Error(err))
			// The read loop sees the closed socket and unregisters it.
			conn.Close()
		}
	}
}

// SendToUser sends a message directly to a user's sockets on this instance.
func (h *Hub) SendToUser(userID uuid.UUID, msg interface{}) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	h.broadcast(userID, data)
	return nil
}

type userSink struct {
	hub    *Hub
	userID uuid.UUID
}

func (s userSink) Send(_ context.Context, frame models.Frame) error {
	return s.hub.SendToUser(s.userID, frame)
}

// Sink delivers a generation's frames straight to the user's sockets. It is
// used when there is no Redis to carry them.
func (h *Hub) Sink(userID uuid.UUID) progress.Sink {
	return userSink{hub: h, userID: userID}
}

func (h *Hub) connectionCount(userID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections[userID])
}
