package view

import (
	"time"

	"github.com/ButyrinIA/forum/internal/models"
)

// Interaction — состояние реакции зрителя на сущность.
type Interaction string

const (
	InteractionLiked    Interaction = "liked"
	InteractionDisliked Interaction = "disliked"
	InteractionNone     Interaction = "none"
)

// PostView — проекция поста для конкретного зрителя. Поля IsAuthor и
// UserInteraction зависят от зрителя, поэтому проекция пересчитывается
// для каждого получателя отдельно и никогда не пересылается чужой.
type PostView struct {
	ID              string      `json:"id"`
	Title           string      `json:"title"`
	Body            string      `json:"body"`
	AuthorID        string      `json:"authorId"`
	CommentsCount   int         `json:"commentsCount"`
	LikesCount      int         `json:"likesCount"`
	DislikesCount   int         `json:"dislikesCount"`
	IsAuthor        bool        `json:"isAuthor"`
	UserInteraction Interaction `json:"userInteraction"`
	CreatedAt       time.Time   `json:"createdAt"`
	UpdatedAt       time.Time   `json:"updatedAt"`
}

type CommentView struct {
	ID              string      `json:"id"`
	PostID          string      `json:"postId"`
	ParentID        *string     `json:"parentId"`
	AuthorID        string      `json:"authorId"`
	Text            string      `json:"text"`
	LikesCount      int         `json:"likesCount"`
	DislikesCount   int         `json:"dislikesCount"`
	IsAuthor        bool        `json:"isAuthor"`
	UserInteraction Interaction `json:"userInteraction"`
	CreatedAt       time.Time   `json:"createdAt"`
	UpdatedAt       time.Time   `json:"updatedAt"`
}

// CommentThread — корневой комментарий вместе с его ответами.
type CommentThread struct {
	CommentView
	Replies []CommentView `json:"replies"`
}

// FeedItem — элемент ленты постов: проекция плюс число корневых
// комментариев и признак "я уже комментировал".
type FeedItem struct {
	PostView
	RootComments int  `json:"rootComments"`
	HasCommented bool `json:"hasCommented"`
}

// interaction вычисляет состояние реакции; аноним всегда получает none.
func interaction(likes, dislikes []string, viewerID *string) Interaction {
	if viewerID == nil {
		return InteractionNone
	}
	if models.HasReaction(likes, *viewerID) {
		return InteractionLiked
	}
	if models.HasReaction(dislikes, *viewerID) {
		return InteractionDisliked
	}
	return InteractionNone
}

func isAuthor(authorID string, viewerID *string) bool {
	return viewerID != nil && authorID == *viewerID
}

// ProjectPost строит проекцию поста глазами зрителя.
func ProjectPost(p *models.Post, viewerID *string) PostView {
	return PostView{
		ID:              p.ID,
		Title:           p.Title,
		Body:            p.Body,
		AuthorID:        p.AuthorID,
		CommentsCount:   p.CommentsCount,
		LikesCount:      len(p.Likes),
		DislikesCount:   len(p.Dislikes),
		IsAuthor:        isAuthor(p.AuthorID, viewerID),
		UserInteraction: interaction(p.Likes, p.Dislikes, viewerID),
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
	}
}

// ProjectComment строит проекцию комментария или ответа глазами зрителя.
func ProjectComment(c *models.Comment, viewerID *string) CommentView {
	return CommentView{
		ID:              c.ID,
		PostID:          c.PostID,
		ParentID:        c.ParentID,
		AuthorID:        c.AuthorID,
		Text:            c.Text,
		LikesCount:      len(c.Likes),
		DislikesCount:   len(c.Dislikes),
		IsAuthor:        isAuthor(c.AuthorID, viewerID),
		UserInteraction: interaction(c.Likes, c.Dislikes, viewerID),
		CreatedAt:       c.CreatedAt,
		UpdatedAt:       c.UpdatedAt,
	}
}

// ProjectComments проецирует срез комментариев.
func ProjectComments(comments []models.Comment, viewerID *string) []CommentView {
	views := make([]CommentView, len(comments))
	for i := range comments {
		views[i] = ProjectComment(&comments[i], viewerID)
	}
	return views
}

// ProjectThread собирает корневой комментарий с ответами.
func ProjectThread(root *models.Comment, replies []models.Comment, viewerID *string) CommentThread {
	return CommentThread{
		CommentView: ProjectComment(root, viewerID),
		Replies:     ProjectComments(replies, viewerID),
	}
}
