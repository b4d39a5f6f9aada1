package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"esm_pdw/internal/logger"
	"esm_pdw/pkg/models"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var (
	// ErrManagerStopped indica que o loop Run já terminou
	ErrManagerStopped = errors.New("websocket: manager stopped")

	// ErrSlowClient indica consumidor removido por fila de envio cheia
	ErrSlowClient = errors.New("websocket: client send buffer full")
)

const (
	defaultWriteTimeout = 5 * time.Second

	// lotes pendentes por consumidor antes de ele ser removido
	clientSendBuffer = 32
)

type client struct {
	id   string
	conn *websocket.Conn
	send chan *websocket.PreparedMessage
}

// WebSocketManager faz o fan-out dos lotes de PDW para os consumidores conectados.
// Cada consumidor tem sua própria fila e goroutine de escrita; quem não esvazia
// a fila a tempo é removido sem atrasar os demais nem o produtor.
type WebSocketManager struct {
	clients    map[*client]bool
	broadcast  chan *websocket.PreparedMessage
	register   chan *client
	unregister chan *client
	mutex      sync.Mutex
	connCount  int

	log          *logger.SystemLogger
	onCount      func(int)
	writeTimeout time.Duration
	done         chan struct{}
}

// NewWebSocketManager cria um novo gerenciador de WebSockets
func NewWebSocketManager(log *logger.SystemLogger) *WebSocketManager {
	return &WebSocketManager{
		clients:      make(map[*client]bool),
		broadcast:    make(chan *websocket.PreparedMessage),
		register:     make(chan *client),
		unregister:   make(chan *client),
		log:          log,
		writeTimeout: defaultWriteTimeout,
		done:         make(chan struct{}),
	}
}

// OnClientCount registra um callback chamado quando o número de clientes muda
func (manager *WebSocketManager) OnClientCount(fn func(int)) {
	manager.onCount = fn
}

// Run processa registros, remoções e broadcasts até o contexto terminar
func (manager *WebSocketManager) Run(ctx context.Context) {
	defer close(manager.done)
	defer manager.CloseAll()

	for {
		select {
		case <-ctx.Done():
			return

		case c := <-manager.register:
			manager.mutex.Lock()
			if _, exists := manager.clients[c]; !exists {
				manager.clients[c] = true
				manager.connCount++
				manager.log.LogClientConnected(c.id, manager.connCount)
				manager.notifyCount()
			}
			manager.mutex.Unlock()

		case c := <-manager.unregister:
			manager.mutex.Lock()
			manager.removeUnsafe(c, nil)
			manager.mutex.Unlock()

		case message := <-manager.broadcast:
			manager.mutex.Lock()
			for c := range manager.clients {
				select {
				case c.send <- message:
				default:
					manager.removeUnsafe(c, ErrSlowClient)
				}
			}
			manager.mutex.Unlock()
		}
	}
}

// removeUnsafe remove e fecha um cliente (deve ser chamado com lock)
func (manager *WebSocketManager) removeUnsafe(c *client, reason error) {
	if _, ok := manager.clients[c]; !ok {
		return
	}
	delete(manager.clients, c)
	manager.connCount--
	close(c.send)
	c.conn.Close()
	manager.log.LogClientDisconnected(c.id, manager.connCount, reason)
	manager.notifyCount()
}

func (manager *WebSocketManager) notifyCount() {
	if manager.onCount != nil {
		manager.onCount(manager.connCount)
	}
}

// Name identifica o sink
func (manager *WebSocketManager) Name() string {
	return "websocket"
}

// PublishBatch serializa o lote uma vez e envia para todos os clientes conectados
func (manager *WebSocketManager) PublishBatch(msg models.BatchMessage) error {
	if manager.GetConnectedCount() == 0 {
		return nil
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("erro ao serializar lote: %w", err)
	}
	prepared, err := websocket.NewPreparedMessage(websocket.TextMessage, data)
	if err != nil {
		return fmt.Errorf("erro ao preparar mensagem: %w", err)
	}

	select {
	case manager.broadcast <- prepared:
		return nil
	case <-manager.done:
		return ErrManagerStopped
	}
}

// CloseAll fecha todas as conexões
func (manager *WebSocketManager) CloseAll() {
	manager.mutex.Lock()
	defer manager.mutex.Unlock()

	for c := range manager.clients {
		close(c.send)
		c.conn.Close()
		delete(manager.clients, c)
	}
	manager.connCount = 0
	manager.notifyCount()
}

// GetConnectedCount retorna número de clientes conectados
func (manager *WebSocketManager) GetConnectedCount() int {
	manager.mutex.Lock()
	defer manager.mutex.Unlock()
	return manager.connCount
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Permitir todas as origens
		return true
	},
}

// HandleWebSocket trata conexões WebSocket
func (manager *WebSocketManager) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !websocket.IsWebSocketUpgrade(r) {
		http.Error(w, "not a websocket upgrade request", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		manager.log.LogCriticalError("websocket", "upgrade", err)
		return
	}

	c := &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan *websocket.PreparedMessage, clientSendBuffer),
	}

	select {
	case manager.register <- c:
	case <-manager.done:
		conn.Close()
		return
	}

	go manager.writePump(c)

	// O consumidor só lê para detectar desconexão; o servidor responde ping automaticamente
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err,
					websocket.CloseGoingAway,
					websocket.CloseNormalClosure) {
					manager.log.LogDebug("websocket", fmt.Sprintf("client %s: %v", c.id, err))
				}
				manager.requestUnregister(c)
				return
			}
		}
	}()
}

// writePump é o único escritor da conexão; termina quando a fila é fechada pelo hub
func (manager *WebSocketManager) writePump(c *client) {
	for message := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(manager.writeTimeout))
		if err := c.conn.WritePreparedMessage(message); err != nil {
			manager.log.LogDebug("websocket", fmt.Sprintf("client %s: write: %v", c.id, err))
			manager.requestUnregister(c)
			// esvazia até o hub fechar a fila
			for range c.send {
			}
			return
		}
	}
	c.conn.SetWriteDeadline(time.Now().Add(time.Second))
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func (manager *WebSocketManager) requestUnregister(c *client) {
	select {
	case manager.unregister <- c:
	case <-manager.done:
	}
}
