package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ButyrinIA/forum/internal/models"
	"github.com/ButyrinIA/forum/internal/storage"
)

// MemoryStorage хранит посты и комментарии в плоских map по id.
// Ответы находятся по полю ParentID, а не по живым указателям.
type MemoryStorage struct {
	posts    map[string]*models.Post
	comments map[string]*models.Comment
	mu       sync.RWMutex
}

func New() *MemoryStorage {
	return &MemoryStorage{
		posts:    make(map[string]*models.Post),
		comments: make(map[string]*models.Comment),
	}
}

func clonePost(p *models.Post) *models.Post {
	cp := *p
	cp.Likes = append([]string(nil), p.Likes...)
	cp.Dislikes = append([]string(nil), p.Dislikes...)
	return &cp
}

func cloneComment(c *models.Comment) *models.Comment {
	cc := *c
	if c.ParentID != nil {
		parentID := *c.ParentID
		cc.ParentID = &parentID
	}
	cc.Likes = append([]string(nil), c.Likes...)
	cc.Dislikes = append([]string(nil), c.Dislikes...)
	return &cc
}

func remove(set []string, userID string) []string {
	out := set[:0]
	for _, id := range set {
		if id != userID {
			out = append(out, id)
		}
	}
	return out
}

func (s *MemoryStorage) CreatePost(ctx context.Context, post *models.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.posts[post.ID] = clonePost(post)
	return nil
}

func (s *MemoryStorage) GetPost(ctx context.Context, id string) (*models.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	post, exists := s.posts[id]
	if !exists {
		return nil, storage.ErrPostNotFound
	}
	return clonePost(post), nil
}

func (s *MemoryStorage) UpdatePost(ctx context.Context, id, title, body string) (*models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	post, exists := s.posts[id]
	if !exists {
		return nil, storage.ErrPostNotFound
	}
	post.Title = title
	post.Body = body
	post.UpdatedAt = time.Now()
	return clonePost(post), nil
}

func (s *MemoryStorage) DeletePost(ctx context.Context, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.posts[id]; !exists {
		return 0, storage.ErrPostNotFound
	}

	removed := 0
	for cid, c := range s.comments {
		if c.PostID == id {
			delete(s.comments, cid)
			removed++
		}
	}
	delete(s.posts, id)
	return removed, nil
}

func (s *MemoryStorage) ListPosts(ctx context.Context, limit int, cursor *string) (*models.PaginatedPosts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var posts []models.Post
	for _, post := range s.posts {
		posts = append(posts, *clonePost(post))
	}

	sort.Slice(posts, func(i, j int) bool {
		return posts[i].CreatedAt.After(posts[j].CreatedAt)
	})

	totalCount := len(posts)

	// Применение курсора: отдаются только посты старше курсора
	if cursor != nil {
		before, err := time.Parse(time.RFC3339Nano, *cursor)
		if err != nil {
			return nil, err
		}
		filtered := posts[:0]
		for _, post := range posts {
			if post.CreatedAt.Before(before) {
				filtered = append(filtered, post)
			}
		}
		posts = filtered
	}

	var nextCursor *string
	if len(posts) > limit {
		posts = posts[:limit]
		cursorVal := posts[limit-1].CreatedAt.Format(time.RFC3339Nano)
		nextCursor = &cursorVal
	}

	return &models.PaginatedPosts{
		Posts:      posts,
		TotalCount: totalCount,
		NextCursor: nextCursor,
	}, nil
}

func (s *MemoryStorage) CreateComment(ctx context.Context, comment *models.Comment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	post, exists := s.posts[comment.PostID]
	if !exists {
		return storage.ErrPostNotFound
	}

	if comment.ParentID == nil {
		// Ограничение уникальности: один корневой комментарий
		// на пару (автор, пост)
		for _, c := range s.comments {
			if c.ParentID == nil && c.PostID == comment.PostID && c.AuthorID == comment.AuthorID {
				return storage.ErrDuplicateRootComment
			}
		}
	} else {
		parent, exists := s.comments[*comment.ParentID]
		if !exists || parent.ParentID != nil {
			return storage.ErrParentNotFound
		}
	}

	s.comments[comment.ID] = cloneComment(comment)
	post.CommentsCount++
	return nil
}

func (s *MemoryStorage) GetComment(ctx context.Context, id string) (*models.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	comment, exists := s.comments[id]
	if !exists {
		return nil, storage.ErrCommentNotFound
	}
	return cloneComment(comment), nil
}

// sortComments сортирует на месте по ключу, при равенстве — по дате создания
// от новых к старым.
func sortComments(comments []models.Comment, key models.SortKey) {
	sort.Slice(comments, func(i, j int) bool {
		a, b := comments[i], comments[j]
		switch key {
		case models.SortMostLiked:
			if len(a.Likes) != len(b.Likes) {
				return len(a.Likes) > len(b.Likes)
			}
		case models.SortMostDisliked:
			if len(a.Dislikes) != len(b.Dislikes) {
				return len(a.Dislikes) > len(b.Dislikes)
			}
		}
		return a.CreatedAt.After(b.CreatedAt)
	})
}

func (s *MemoryStorage) ListRootComments(ctx context.Context, postID string, key models.SortKey) ([]models.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var roots []models.Comment
	for _, c := range s.comments {
		if c.PostID == postID && c.ParentID == nil {
			roots = append(roots, *cloneComment(c))
		}
	}
	sortComments(roots, key)
	return roots, nil
}

func (s *MemoryStorage) ListReplies(ctx context.Context, parentID string) ([]models.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var replies []models.Comment
	for _, c := range s.comments {
		if c.ParentID != nil && *c.ParentID == parentID {
			replies = append(replies, *cloneComment(c))
		}
	}
	sortComments(replies, models.SortNewest)
	return replies, nil
}

func (s *MemoryStorage) ListComments(ctx context.Context, key models.SortKey, page, limit int) (*models.PaginatedComments, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var comments []models.Comment
	for _, c := range s.comments {
		comments = append(comments, *cloneComment(c))
	}
	sortComments(comments, key)

	total := len(comments)
	pages := (total + limit - 1) / limit
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}

	return &models.PaginatedComments{
		Comments: comments[start:end],
		Pagination: models.Pagination{
			Total:       total,
			Page:        page,
			Pages:       pages,
			Limit:       limit,
			HasNextPage: page < pages,
			HasPrevPage: page > 1 && total > 0,
		},
	}, nil
}

func (s *MemoryStorage) UpdateCommentText(ctx context.Context, id, text string) (*models.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	comment, exists := s.comments[id]
	if !exists {
		return nil, storage.ErrCommentNotFound
	}
	comment.Text = text
	comment.UpdatedAt = time.Now()
	return cloneComment(comment), nil
}

func (s *MemoryStorage) DeleteCommentCascade(ctx context.Context, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	comment, exists := s.comments[id]
	if !exists {
		return 0, storage.ErrCommentNotFound
	}

	replies := 0
	for cid, c := range s.comments {
		if c.ParentID != nil && *c.ParentID == id {
			delete(s.comments, cid)
			replies++
		}
	}
	delete(s.comments, id)

	if post, exists := s.posts[comment.PostID]; exists {
		post.CommentsCount -= 1 + replies
	}
	return replies, nil
}

func (s *MemoryStorage) DeleteReply(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	reply, exists := s.comments[id]
	if !exists {
		return storage.ErrCommentNotFound
	}
	delete(s.comments, id)

	if post, exists := s.posts[reply.PostID]; exists {
		post.CommentsCount--
	}
	return nil
}

// toggle применяет машину состояний реакции к паре множеств.
func toggle(likes, dislikes *[]string, userID string, kind models.ReactionKind) bool {
	target, opposite := likes, dislikes
	if kind == models.ReactionDislike {
		target, opposite = dislikes, likes
	}

	if models.HasReaction(*target, userID) {
		*target = remove(*target, userID)
		return false
	}
	*target = append(*target, userID)
	*opposite = remove(*opposite, userID)
	return true
}

func (s *MemoryStorage) TogglePostReaction(ctx context.Context, id, userID string, kind models.ReactionKind) (*models.Post, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	post, exists := s.posts[id]
	if !exists {
		return nil, false, storage.ErrPostNotFound
	}
	nowActive := toggle(&post.Likes, &post.Dislikes, userID, kind)
	post.UpdatedAt = time.Now()
	return clonePost(post), nowActive, nil
}

func (s *MemoryStorage) ToggleCommentReaction(ctx context.Context, id, userID string, kind models.ReactionKind) (*models.Comment, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	comment, exists := s.comments[id]
	if !exists {
		return nil, false, storage.ErrCommentNotFound
	}
	nowActive := toggle(&comment.Likes, &comment.Dislikes, userID, kind)
	comment.UpdatedAt = time.Now()
	return cloneComment(comment), nowActive, nil
}

func (s *MemoryStorage) CommentCounts(ctx context.Context, postIDs []string) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wanted := make(map[string]bool, len(postIDs))
	for _, id := range postIDs {
		wanted[id] = true
	}

	counts := make(map[string]int, len(postIDs))
	for _, c := range s.comments {
		if c.ParentID == nil && wanted[c.PostID] {
			counts[c.PostID]++
		}
	}
	return counts, nil
}

func (s *MemoryStorage) CommentedPostIDs(ctx context.Context, userID string, postIDs []string) (map[string]bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wanted := make(map[string]bool, len(postIDs))
	for _, id := range postIDs {
		wanted[id] = true
	}

	commented := make(map[string]bool)
	for _, c := range s.comments {
		if c.ParentID == nil && c.AuthorID == userID && wanted[c.PostID] {
			commented[c.PostID] = true
		}
	}
	return commented, nil
}

func (s *MemoryStorage) Close() error {
	return nil
}
