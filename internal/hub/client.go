package hub

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// State — жизненный цикл соединения.
type State int32

const (
	StateConnecting State = iota
	StateAuthorized
	StateActive
	StateClosed
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 32
)

// Client — одно живое соединение. userID == nil у анонимного зрителя:
// он получает рассылку, но все проекции для него считаются без реакции
// и без авторства.
//
// Канал send никогда не закрывается: рассылка пишет в него параллельно
// с отключением клиента. Сигналом завершения служит done.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	userID *string
	state  atomic.Int32
}

// NewClient оборачивает уже авторизованное соединение. Identity Gate
// проверяет токен до апгрейда, поэтому клиент рождается в состоянии
// Authorized.
func NewClient(h *Hub, conn *websocket.Conn, userID *string) *Client {
	c := &Client{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
		userID: userID,
	}
	c.state.Store(int32(StateAuthorized))
	return c
}

func (c *Client) State() State {
	return State(c.state.Load())
}

func (c *Client) setState(s State) {
	c.state.Store(int32(s))
}

func (c *Client) userLabel() string {
	if c.userID == nil {
		return "anonymous"
	}
	return *c.userID
}

// Run запускает насосы чтения и записи и блокируется до разрыва
// соединения.
func (c *Client) Run(ctx context.Context) {
	c.hub.Register(c)
	go c.writePump()
	c.readPump(ctx)
}

// readPump обслуживает входящие pull-запросы; любая ошибка чтения
// закрывает соединение.
func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.log.Warn("соединение оборвано", zap.Error(err))
			}
			return
		}

		var req request
		if err := json.Unmarshal(message, &req); err != nil {
			c.reply(response{Status: "error", Message: "malformed request"})
			continue
		}
		c.reply(c.hub.handleRequest(ctx, c, req))
	}
}

// reply ставит ответ в очередь отправки этого клиента.
func (c *Client) reply(resp response) {
	payload, err := json.Marshal(resp)
	if err != nil {
		c.hub.log.Error("не удалось сериализовать ответ", zap.Error(err))
		return
	}
	select {
	case c.send <- payload:
	default:
		c.hub.log.Warn("очередь клиента переполнена, ответ отброшен",
			zap.String("userID", c.userLabel()))
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
