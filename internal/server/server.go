package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/ButyrinIA/forum/internal/config"
	"github.com/ButyrinIA/forum/internal/hub"
	"github.com/ButyrinIA/forum/internal/models"
	"github.com/ButyrinIA/forum/internal/service"
	"github.com/ButyrinIA/forum/internal/storage"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type Server struct {
	cfg      *config.Config
	posts    *service.PostService
	comments *service.CommentService
	hub      *hub.Hub
	handler  *gin.Engine
	upgrader websocket.Upgrader
	log      *zap.Logger
}

func New(cfg *config.Config, store storage.Storage, log *zap.Logger) *Server {
	posts := service.NewPostService(store)
	comments := service.NewCommentService(store)

	s := &Server{
		cfg:      cfg,
		posts:    posts,
		comments: comments,
		hub:      hub.New(posts, comments, log),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log: log,
	}
	s.handler = s.routes()
	return s
}

func (s *Server) routes() *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery(), s.authMiddleware())

	engine.GET("/token", s.tokenHandler)
	engine.GET("/ws", s.wsHandler)

	api := engine.Group("/api")
	{
		api.GET("/posts", s.listPosts)
		api.GET("/posts/:id", s.getPost)
		api.GET("/posts/:id/comments", s.getPostComments)
		api.GET("/comments", s.listComments)

		authed := api.Group("", requireAuth())
		{
			authed.POST("/posts", s.createPost)
			authed.PUT("/posts/:id", s.updatePost)
			authed.DELETE("/posts/:id", s.deletePost)
			authed.PUT("/posts/:id/like", s.reactToPost(models.ReactionLike))
			authed.PUT("/posts/:id/dislike", s.reactToPost(models.ReactionDislike))

			authed.POST("/posts/:id/comments", s.createRootComment)
			authed.PUT("/comments/:id", s.updateComment)
			authed.DELETE("/comments/:id", s.deleteComment)
			authed.PUT("/comments/:id/like", s.reactToComment(models.ReactionLike))
			authed.PUT("/comments/:id/dislike", s.reactToComment(models.ReactionDislike))

			authed.POST("/comments/:id/replies", s.createReply)
			authed.PUT("/replies/:id", s.updateReply)
			authed.DELETE("/replies/:id", s.deleteReply)
			authed.PUT("/replies/:id/like", s.reactToReply(models.ReactionLike))
			authed.PUT("/replies/:id/dislike", s.reactToReply(models.ReactionDislike))
		}
	}
	return engine
}

func (s *Server) Run() error {
	s.log.Info("сервер слушает", zap.String("port", s.cfg.Server.Port))
	return http.ListenAndServe(":"+s.cfg.Server.Port, s.handler)
}

// Handler отдает корневой http-обработчик (используется в тестах).
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Hub отдает координатор рассылки (используется в тестах).
func (s *Server) Hub() *hub.Hub {
	return s.hub
}

// fail транслирует ошибку ядра в код транспорта. Ошибки по пути не
// переписываются, поэтому здесь достаточно errors.Is.
func (s *Server) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrBadCursor):
		c.JSON(http.StatusBadRequest, gin.H{"error": service.ErrBadCursor.Error()})
	case errors.Is(err, storage.ErrPostNotFound),
		errors.Is(err, storage.ErrCommentNotFound),
		errors.Is(err, storage.ErrParentNotFound),
		errors.Is(err, service.ErrNotAReply):
		c.JSON(http.StatusNotFound, gin.H{"error": unwrapMessage(err)})
	case errors.Is(err, service.ErrNotAuthorized):
		c.JSON(http.StatusForbidden, gin.H{"error": service.ErrNotAuthorized.Error()})
	case errors.Is(err, storage.ErrDuplicateRootComment):
		c.JSON(http.StatusConflict, gin.H{"error": storage.ErrDuplicateRootComment.Error()})
	case errors.Is(err, storage.ErrUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": storage.ErrUnavailable.Error()})
	default:
		s.log.Error("необработанная ошибка", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// unwrapMessage возвращает сообщение канонической ошибки, не раскрывая
// обертки.
func unwrapMessage(err error) string {
	for _, sentinel := range []error{
		storage.ErrPostNotFound,
		storage.ErrCommentNotFound,
		storage.ErrParentNotFound,
		service.ErrNotAReply,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return err.Error()
}

// tokenHandler выпускает токен для разработки и ручной проверки.
func (s *Server) tokenHandler(c *gin.Context) {
	userID := c.DefaultQuery("user", "user1")
	token, err := generateToken(s.cfg.Auth.Secret, userID, time.Duration(s.cfg.Auth.TTLHours)*time.Hour)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}

// wsHandler поднимает дуплексный канал событий. Невалидный токен
// закрывает соединение еще до апгрейда; отсутствие токена дает
// анонимное соединение только на чтение.
func (s *Server) wsHandler(c *gin.Context) {
	var userID *string
	if token := bearerToken(c.Request); token != "" {
		id, err := validateJWT(s.cfg.Auth.Secret, token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}
		userID = &id
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn("не удалось выполнить апгрейд соединения", zap.Error(err))
		return
	}

	client := hub.NewClient(s.hub, conn, userID)
	client.Run(c.Request.Context())
}
