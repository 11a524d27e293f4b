package storage

import (
	"context"
	"errors"

	"github.com/ButyrinIA/forum/internal/models"
)

// Ошибки хранилища. Слои выше проверяют их через errors.Is и
// транслируют в коды транспорта, не переписывая по пути.
var (
	ErrPostNotFound         = errors.New("post not found")
	ErrCommentNotFound      = errors.New("comment not found")
	ErrParentNotFound       = errors.New("parent comment not found")
	ErrDuplicateRootComment = errors.New("author already has a comment on this post")
	ErrUnavailable          = errors.New("storage unavailable")
)

// Storage — атомарные примитивы над постами и комментариями.
// Каждая мутация, меняющая структуру дерева, корректирует счетчик
// commentsCount поста в той же атомарной единице.
type Storage interface {
	CreatePost(ctx context.Context, post *models.Post) error
	GetPost(ctx context.Context, id string) (*models.Post, error)
	UpdatePost(ctx context.Context, id, title, body string) (*models.Post, error)
	// DeletePost удаляет пост вместе со всеми его комментариями и ответами,
	// возвращает количество удаленных комментариев.
	DeletePost(ctx context.Context, id string) (int, error)
	ListPosts(ctx context.Context, limit int, cursor *string) (*models.PaginatedPosts, error)

	// CreateComment вставляет корневой комментарий или ответ и увеличивает
	// счетчик поста на 1. Для корневого комментария ограничение
	// "один корневой на автора и пост" обеспечивается самим хранилищем,
	// а не проверкой перед вставкой.
	CreateComment(ctx context.Context, comment *models.Comment) error
	GetComment(ctx context.Context, id string) (*models.Comment, error)
	ListRootComments(ctx context.Context, postID string, sort models.SortKey) ([]models.Comment, error)
	ListReplies(ctx context.Context, parentID string) ([]models.Comment, error)
	ListComments(ctx context.Context, sort models.SortKey, page, limit int) (*models.PaginatedComments, error)
	UpdateCommentText(ctx context.Context, id, text string) (*models.Comment, error)
	// DeleteCommentCascade удаляет корневой комментарий вместе с ответами,
	// уменьшает счетчик поста на 1+n и возвращает n — число удаленных ответов.
	DeleteCommentCascade(ctx context.Context, id string) (int, error)
	// DeleteReply удаляет один ответ и уменьшает счетчик поста на 1.
	DeleteReply(ctx context.Context, id string) error

	// Переключение реакции: повторная реакция того же вида снимается,
	// новая реакция всегда вытесняет противоположную. Второй результат —
	// активна ли реакция после переключения.
	TogglePostReaction(ctx context.Context, id, userID string, kind models.ReactionKind) (*models.Post, bool, error)
	ToggleCommentReaction(ctx context.Context, id, userID string, kind models.ReactionKind) (*models.Comment, bool, error)

	// CommentCounts возвращает число корневых комментариев по каждому посту.
	CommentCounts(ctx context.Context, postIDs []string) (map[string]int, error)
	// CommentedPostIDs возвращает посты из списка, на которых у пользователя
	// есть корневой комментарий.
	CommentedPostIDs(ctx context.Context, userID string, postIDs []string) (map[string]bool, error)

	Close() error
}
