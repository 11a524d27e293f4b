package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ButyrinIA/forum/internal/models"
	"github.com/ButyrinIA/forum/internal/storage"
	"github.com/google/uuid"
)

// Ошибки уровня сервиса. Проверка существования всегда идет раньше
// проверки авторства: чужой и отсутствующий комментарий для вызывающего
// неразличимы, пока сущность не найдена.
var (
	ErrNotAuthorized = errors.New("not authorized")
	ErrNotAReply     = errors.New("this is not a reply")
)

// Thread — корневой комментарий вместе с ответами.
type Thread struct {
	Root    models.Comment
	Replies []models.Comment
}

// CommentService управляет двухуровневым деревом комментариев и
// реакциями на них.
type CommentService struct {
	storage storage.Storage
}

func NewCommentService(s storage.Storage) *CommentService {
	return &CommentService{storage: s}
}

// CreateRoot создает корневой комментарий. Ограничение "один корневой
// комментарий на автора и пост" обеспечивает хранилище.
func (s *CommentService) CreateRoot(ctx context.Context, text, authorID, postID string) (*models.Comment, error) {
	now := time.Now()
	comment := &models.Comment{
		ID:        uuid.New().String(),
		PostID:    postID,
		AuthorID:  authorID,
		Text:      text,
		Likes:     []string{},
		Dislikes:  []string{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.storage.CreateComment(ctx, comment); err != nil {
		return nil, err
	}
	return comment, nil
}

// CreateReply создает ответ на корневой комментарий. Ответ наследует
// postId родителя; ответ на ответ запрещен и неотличим от отсутствия
// родителя.
func (s *CommentService) CreateReply(ctx context.Context, text, authorID, parentID string) (*models.Comment, error) {
	parent, err := s.storage.GetComment(ctx, parentID)
	if errors.Is(err, storage.ErrCommentNotFound) {
		return nil, storage.ErrParentNotFound
	}
	if err != nil {
		return nil, err
	}
	if !parent.IsRoot() {
		return nil, storage.ErrParentNotFound
	}

	now := time.Now()
	reply := &models.Comment{
		ID:        uuid.New().String(),
		PostID:    parent.PostID,
		ParentID:  &parentID,
		AuthorID:  authorID,
		Text:      text,
		Likes:     []string{},
		Dislikes:  []string{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.storage.CreateComment(ctx, reply); err != nil {
		return nil, err
	}
	return reply, nil
}

// owned возвращает комментарий, убедившись сначала в его существовании,
// затем в авторстве вызывающего.
func (s *CommentService) owned(ctx context.Context, id, callerID string) (*models.Comment, error) {
	comment, err := s.storage.GetComment(ctx, id)
	if err != nil {
		return nil, err
	}
	if comment.AuthorID != callerID {
		return nil, ErrNotAuthorized
	}
	return comment, nil
}

// Update меняет текст комментария или ответа.
func (s *CommentService) Update(ctx context.Context, id, text, callerID string) (*models.Comment, error) {
	if _, err := s.owned(ctx, id, callerID); err != nil {
		return nil, err
	}
	return s.storage.UpdateCommentText(ctx, id, text)
}

// UpdateReply меняет текст ответа; корневой комментарий по этому пути
// не редактируется.
func (s *CommentService) UpdateReply(ctx context.Context, id, text, callerID string) (*models.Comment, error) {
	comment, err := s.owned(ctx, id, callerID)
	if err != nil {
		return nil, err
	}
	if comment.IsRoot() {
		return nil, ErrNotAReply
	}
	return s.storage.UpdateCommentText(ctx, id, text)
}

// Delete удаляет комментарий. Для корневого удаляются и все его ответы,
// возвращается их количество для отчета вызывающему.
func (s *CommentService) Delete(ctx context.Context, id, callerID string) (*models.Comment, int, error) {
	comment, err := s.owned(ctx, id, callerID)
	if err != nil {
		return nil, 0, err
	}

	if comment.IsRoot() {
		cascaded, err := s.storage.DeleteCommentCascade(ctx, id)
		if err != nil {
			return nil, 0, err
		}
		return comment, cascaded, nil
	}

	if err := s.storage.DeleteReply(ctx, id); err != nil {
		return nil, 0, err
	}
	return comment, 0, nil
}

// DeleteReply удаляет один ответ; корневой комментарий по этому пути
// не удаляется.
func (s *CommentService) DeleteReply(ctx context.Context, id, callerID string) (*models.Comment, error) {
	comment, err := s.owned(ctx, id, callerID)
	if err != nil {
		return nil, err
	}
	if comment.IsRoot() {
		return nil, ErrNotAReply
	}
	if err := s.storage.DeleteReply(ctx, id); err != nil {
		return nil, err
	}
	return comment, nil
}

// Toggle переключает реакцию пользователя на комментарий или ответ.
func (s *CommentService) Toggle(ctx context.Context, id, userID string, kind models.ReactionKind) (*models.Comment, bool, error) {
	return s.storage.ToggleCommentReaction(ctx, id, userID, kind)
}

// RootsWithReplies возвращает все корневые комментарии поста с их
// ответами. Корневые сортируются по ключу, ответы — всегда от новых
// к старым.
func (s *CommentService) RootsWithReplies(ctx context.Context, postID string, key models.SortKey) ([]Thread, error) {
	roots, err := s.storage.ListRootComments(ctx, postID, key)
	if err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}

	threads := make([]Thread, len(roots))
	for i := range roots {
		replies, err := s.storage.ListReplies(ctx, roots[i].ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list replies: %w", err)
		}
		threads[i] = Thread{Root: roots[i], Replies: replies}
	}
	return threads, nil
}

// Thread возвращает один корневой комментарий вместе с ответами.
func (s *CommentService) Thread(ctx context.Context, commentID string) (*Thread, error) {
	root, err := s.storage.GetComment(ctx, commentID)
	if err != nil {
		return nil, err
	}
	replies, err := s.storage.ListReplies(ctx, commentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list replies: %w", err)
	}
	return &Thread{Root: *root, Replies: replies}, nil
}

// Get возвращает комментарий по id.
func (s *CommentService) Get(ctx context.Context, id string) (*models.Comment, error) {
	return s.storage.GetComment(ctx, id)
}

// List возвращает страницу всех комментариев и ответов.
func (s *CommentService) List(ctx context.Context, key models.SortKey, page, limit int) (*models.PaginatedComments, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 10
	}
	return s.storage.ListComments(ctx, key, page, limit)
}
