package view

import (
	"testing"
	"time"

	"github.com/ButyrinIA/forum/internal/models"
	"github.com/stretchr/testify/assert"
)

func strPtr(s string) *string { return &s }

func TestProjectPost(t *testing.T) {
	post := &models.Post{
		ID:            "post1",
		Title:         "Тестовый пост",
		Body:          "Содержимое",
		AuthorID:      "userA",
		Likes:         []string{"userA", "userC"},
		Dislikes:      []string{"userD"},
		CommentsCount: 5,
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}

	t.Run("Author who liked", func(t *testing.T) {
		v := ProjectPost(post, strPtr("userA"))
		assert.True(t, v.IsAuthor, "Автор должен видеть isAuthor=true")
		assert.Equal(t, InteractionLiked, v.UserInteraction)
		assert.Equal(t, 2, v.LikesCount)
		assert.Equal(t, 1, v.DislikesCount)
		assert.Equal(t, 5, v.CommentsCount)
	})

	t.Run("Viewer who disliked", func(t *testing.T) {
		v := ProjectPost(post, strPtr("userD"))
		assert.False(t, v.IsAuthor, "Чужой пост не должен помечаться как свой")
		assert.Equal(t, InteractionDisliked, v.UserInteraction)
	})

	t.Run("Viewer without reaction", func(t *testing.T) {
		v := ProjectPost(post, strPtr("userB"))
		assert.Equal(t, InteractionNone, v.UserInteraction)
	})

	t.Run("Anonymous viewer", func(t *testing.T) {
		v := ProjectPost(post, nil)
		assert.False(t, v.IsAuthor, "Аноним никогда не автор")
		assert.Equal(t, InteractionNone, v.UserInteraction, "Аноним всегда видит none")
	})
}

func TestProjectComment(t *testing.T) {
	parentID := "root1"
	comment := &models.Comment{
		ID:       "reply1",
		PostID:   "post1",
		ParentID: &parentID,
		AuthorID: "userB",
		Text:     "Ответ",
		Likes:    []string{"userA"},
		Dislikes: []string{},
	}

	actor := ProjectComment(comment, strPtr("userA"))
	assert.Equal(t, InteractionLiked, actor.UserInteraction, "Действующий видит свой лайк")
	assert.False(t, actor.IsAuthor)

	// Проекция никогда не переносит чужую перспективу: тот же
	// комментарий глазами другого зрителя
	other := ProjectComment(comment, strPtr("userB"))
	assert.Equal(t, InteractionNone, other.UserInteraction, "Другой зритель видит none, а не чужой liked")
	assert.True(t, other.IsAuthor)
	assert.Equal(t, actor.LikesCount, other.LikesCount, "Счетчики от зрителя не зависят")
}

func TestProjectThread(t *testing.T) {
	root := &models.Comment{ID: "root1", PostID: "post1", AuthorID: "userA", Text: "hello"}
	replies := []models.Comment{
		{ID: "reply1", PostID: "post1", ParentID: strPtr("root1"), AuthorID: "userB", Text: "hi"},
	}

	thread := ProjectThread(root, replies, strPtr("userB"))
	assert.Equal(t, "root1", thread.ID)
	assert.False(t, thread.IsAuthor)
	assert.Len(t, thread.Replies, 1)
	assert.True(t, thread.Replies[0].IsAuthor, "Автор ответа должен видеть свой ответ как свой")
}
