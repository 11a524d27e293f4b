package models

import "time"

// SortKey определяет порядок выдачи комментариев и постов.
type SortKey string

const (
	SortNewest       SortKey = "newest"
	SortMostLiked    SortKey = "mostLiked"
	SortMostDisliked SortKey = "mostDisliked"
)

// ParseSortKey возвращает ключ сортировки, по умолчанию newest.
func ParseSortKey(s string) SortKey {
	switch SortKey(s) {
	case SortMostLiked:
		return SortMostLiked
	case SortMostDisliked:
		return SortMostDisliked
	default:
		return SortNewest
	}
}

// ReactionKind — тип реакции пользователя на сущность.
type ReactionKind string

const (
	ReactionLike    ReactionKind = "like"
	ReactionDislike ReactionKind = "dislike"
)

// Opposite возвращает противоположную реакцию.
func (k ReactionKind) Opposite() ReactionKind {
	if k == ReactionLike {
		return ReactionDislike
	}
	return ReactionLike
}

type Post struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Body          string    `json:"body"`
	AuthorID      string    `json:"authorId"`
	Likes         []string  `json:"likes"`
	Dislikes      []string  `json:"dislikes"`
	CommentsCount int       `json:"commentsCount"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Comment используется и для корневых комментариев, и для ответов:
// у ответа ParentID указывает на корневой комментарий, у корневого он nil.
type Comment struct {
	ID        string    `json:"id"`
	PostID    string    `json:"postId"`
	ParentID  *string   `json:"parentId"`
	AuthorID  string    `json:"authorId"`
	Text      string    `json:"text"`
	Likes     []string  `json:"likes"`
	Dislikes  []string  `json:"dislikes"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// IsRoot сообщает, является ли комментарий корневым.
func (c *Comment) IsRoot() bool {
	return c.ParentID == nil
}

// HasReaction проверяет членство пользователя в множестве реакций.
func HasReaction(set []string, userID string) bool {
	for _, id := range set {
		if id == userID {
			return true
		}
	}
	return false
}

type PaginatedPosts struct {
	Posts      []Post  `json:"posts"`
	TotalCount int     `json:"totalCount"`
	NextCursor *string `json:"nextCursor"`
}

type Pagination struct {
	Total       int  `json:"total"`
	Page        int  `json:"page"`
	Pages       int  `json:"pages"`
	Limit       int  `json:"limit"`
	HasNextPage bool `json:"hasNextPage"`
	HasPrevPage bool `json:"hasPrevPage"`
}

type PaginatedComments struct {
	Comments   []Comment  `json:"comments"`
	Pagination Pagination `json:"pagination"`
}
