package hub

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/ButyrinIA/forum/internal/models"
	"github.com/ButyrinIA/forum/internal/service"
	"github.com/ButyrinIA/forum/internal/storage"
	"github.com/ButyrinIA/forum/internal/view"
	"go.uber.org/zap"
)

// Event — одно широковещательное событие. Payload не прикладывается
// к событию заранее: Render вызывается отдельно для каждого получателя,
// чтобы зависящие от зрителя поля никогда не пересылались чужими.
type Event struct {
	Name         string
	OriginUserID string
	Render       func(viewerID *string) any
}

// StaticEvent строит событие с одинаковым для всех получателей payload.
func StaticEvent(name, originUserID string, payload any) Event {
	return Event{
		Name:         name,
		OriginUserID: originUserID,
		Render:       func(*string) any { return payload },
	}
}

type frame struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Hub владеет множеством живых соединений. Соединения регистрируются
// при подключении и снимаются при разрыве; никакого глобального
// состояния вне Hub нет.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}

	posts    *service.PostService
	comments *service.CommentService
	log      *zap.Logger
}

func New(posts *service.PostService, comments *service.CommentService, log *zap.Logger) *Hub {
	return &Hub{
		clients:  make(map[*Client]struct{}),
		posts:    posts,
		comments: comments,
		log:      log,
	}
}

// Register переводит клиента в состояние Active и включает его
// в рассылку.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	c.setState(StateActive)
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	h.log.Info("клиент подключен", zap.String("userID", c.userLabel()))
}

// Unregister снимает клиента с рассылки и сигнализирует насосу записи
// о завершении. Очередь отправки не закрывается: Broadcast может писать
// в нее уже после снятия, такие кадры просто теряются вместе с клиентом.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.setState(StateClosed)
		close(c.done)
	}
	h.mu.Unlock()

	h.log.Info("клиент отключен", zap.String("userID", c.userLabel()))
}

// ClientCount возвращает число активных соединений.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast доставляет событие всем активным соединениям, кроме
// соединений инициатора: он уже получил результат синхронным ответом.
// Доставка негарантированная, не более одного раза: медленный получатель
// событие теряет и восстанавливает состояние повторным fetch.
func (h *Hub) Broadcast(evt Event) {
	h.mu.RLock()
	recipients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		if c.userID != nil && *c.userID == evt.OriginUserID {
			continue
		}
		recipients = append(recipients, c)
	}
	h.mu.RUnlock()

	for _, c := range recipients {
		payload, err := json.Marshal(frame{Type: evt.Name, Data: evt.Render(c.userID)})
		if err != nil {
			h.log.Error("не удалось сериализовать событие",
				zap.String("event", evt.Name), zap.Error(err))
			continue
		}
		select {
		case c.send <- payload:
		default:
			h.log.Warn("очередь клиента переполнена, событие отброшено",
				zap.String("event", evt.Name), zap.String("userID", c.userLabel()))
		}
	}
}

// Запросы по каналу: и запрос, и ответ несут корреляционный id.

type request struct {
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload"`
}

type response struct {
	Type    string `json:"type"`
	ID      string `json:"id"`
	Status  string `json:"status"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

func okResponse(req request, data any) response {
	return response{Type: req.Type, ID: req.ID, Status: "ok", Data: data}
}

func errResponse(req request, err error) response {
	return response{Type: req.Type, ID: req.ID, Status: "error", Message: err.Error()}
}

// handleRequest отвечает на pull-запрос одного клиента. Ответ считается
// заново на каждый запрос и между соединениями не кэшируется.
func (h *Hub) handleRequest(ctx context.Context, c *Client, req request) response {
	switch req.Type {
	case "fetch-posts":
		var p struct {
			Cursor  *string `json:"cursor"`
			Limit   int     `json:"limit"`
			SortKey string  `json:"sortKey"`
		}
		if err := json.Unmarshal(req.Payload, &p); err != nil {
			return errResponse(req, err)
		}
		feed, err := h.posts.Feed(ctx, c.userID, p.Cursor, p.Limit, models.ParseSortKey(p.SortKey))
		if err != nil {
			return errResponse(req, err)
		}
		return okResponse(req, feed)

	case "fetch-comments":
		var p struct {
			PostID  string `json:"postId"`
			SortKey string `json:"sortKey"`
		}
		if err := json.Unmarshal(req.Payload, &p); err != nil {
			return errResponse(req, err)
		}
		threads, err := h.comments.RootsWithReplies(ctx, p.PostID, models.ParseSortKey(p.SortKey))
		if err != nil {
			return errResponse(req, err)
		}
		views := make([]view.CommentThread, len(threads))
		for i := range threads {
			views[i] = view.ProjectThread(&threads[i].Root, threads[i].Replies, c.userID)
		}
		return okResponse(req, views)

	case "fetch-comment-replies":
		var p struct {
			CommentID string `json:"commentId"`
		}
		if err := json.Unmarshal(req.Payload, &p); err != nil {
			return errResponse(req, err)
		}
		thread, err := h.comments.Thread(ctx, p.CommentID)
		if errors.Is(err, storage.ErrCommentNotFound) {
			return okResponse(req, struct{}{})
		}
		if err != nil {
			return errResponse(req, err)
		}
		return okResponse(req, view.ProjectThread(&thread.Root, thread.Replies, c.userID))

	default:
		return errResponse(req, errors.New("unknown request type: "+req.Type))
	}
}
