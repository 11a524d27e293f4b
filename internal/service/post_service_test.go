package service

import (
	"context"
	"testing"
	"time"

	"github.com/ButyrinIA/forum/internal/models"
	"github.com/ButyrinIA/forum/internal/storage"
	"github.com/ButyrinIA/forum/internal/storage/memory"
	"github.com/ButyrinIA/forum/internal/view"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func createPosts(t *testing.T, svc *PostService, authorID string, titles ...string) []*models.Post {
	t.Helper()
	posts := make([]*models.Post, 0, len(titles))
	for _, title := range titles {
		post, err := svc.Create(context.Background(), title, "body", authorID)
		require.NoError(t, err)
		posts = append(posts, post)
		// курсор привязан к дате создания, метки должны различаться
		time.Sleep(time.Millisecond)
	}
	return posts
}

func TestFeed_Enrichment(t *testing.T) {
	store := memory.New()
	posts := NewPostService(store)
	comments := NewCommentService(store)
	ctx := context.Background()

	created := createPosts(t, posts, "alice", "first", "second")
	p1, p2 := created[0], created[1]

	_, _, err := posts.Toggle(ctx, p1.ID, "bob", models.ReactionLike)
	require.NoError(t, err)
	_, err = comments.CreateRoot(ctx, "hello", "bob", p2.ID)
	require.NoError(t, err)

	page, err := posts.Feed(ctx, strPtr("bob"), nil, 10, models.SortNewest)
	require.NoError(t, err)
	require.Len(t, page.Items, 2)

	byID := map[string]view.FeedItem{}
	for _, item := range page.Items {
		byID[item.ID] = item
	}

	item1 := byID[p1.ID]
	assert.Equal(t, view.InteractionLiked, item1.UserInteraction, "Боб лайкнул первый пост")
	assert.False(t, item1.IsAuthor)
	assert.Equal(t, 0, item1.RootComments)
	assert.False(t, item1.HasCommented)

	item2 := byID[p2.ID]
	assert.Equal(t, view.InteractionNone, item2.UserInteraction)
	assert.Equal(t, 1, item2.RootComments, "Под вторым постом один корневой комментарий")
	assert.True(t, item2.HasCommented, "Боб уже комментировал второй пост")

	// Глазами автора
	page, err = posts.Feed(ctx, strPtr("alice"), nil, 10, models.SortNewest)
	require.NoError(t, err)
	for _, item := range page.Items {
		assert.True(t, item.IsAuthor, "Алиса — автор обоих постов")
		assert.Equal(t, view.InteractionNone, item.UserInteraction)
		assert.False(t, item.HasCommented)
	}

	// Глазами анонима
	page, err = posts.Feed(ctx, nil, nil, 10, models.SortNewest)
	require.NoError(t, err)
	for _, item := range page.Items {
		assert.False(t, item.IsAuthor)
		assert.Equal(t, view.InteractionNone, item.UserInteraction,
			"Аноним не видит ничьих реакций как своих")
		assert.False(t, item.HasCommented)
	}
}

func TestFeed_Pagination(t *testing.T) {
	store := memory.New()
	posts := NewPostService(store)
	ctx := context.Background()

	createPosts(t, posts, "alice", "one", "two", "three")

	page, err := posts.Feed(ctx, nil, nil, 2, models.SortNewest)
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)
	assert.True(t, page.HasMore)
	require.NotNil(t, page.NextCursor)

	next, err := posts.Feed(ctx, nil, page.NextCursor, 2, models.SortNewest)
	require.NoError(t, err)
	assert.Len(t, next.Items, 1, "На второй странице остается один пост")
	assert.False(t, next.HasMore)
	assert.Nil(t, next.NextCursor)
}

func TestFeed_SortWithinPage(t *testing.T) {
	store := memory.New()
	posts := NewPostService(store)
	ctx := context.Background()

	created := createPosts(t, posts, "alice", "one", "two", "three")

	for _, user := range []string{"u1", "u2"} {
		_, _, err := posts.Toggle(ctx, created[0].ID, user, models.ReactionLike)
		require.NoError(t, err)
	}
	_, _, err := posts.Toggle(ctx, created[2].ID, "u1", models.ReactionLike)
	require.NoError(t, err)

	page, err := posts.Feed(ctx, nil, nil, 10, models.SortMostLiked)
	require.NoError(t, err)
	require.Len(t, page.Items, 3)
	assert.Equal(t, created[0].ID, page.Items[0].ID, "Пост с двумя лайками идет первым")
	assert.Equal(t, created[2].ID, page.Items[1].ID)
	assert.Equal(t, created[1].ID, page.Items[2].ID)
}

func TestFeed_BadCursor(t *testing.T) {
	store := memory.New()
	posts := NewPostService(store)
	ctx := context.Background()

	createPosts(t, posts, "alice", "one")

	_, err := posts.Feed(ctx, nil, strPtr("не-метка-времени"), 10, models.SortNewest)
	assert.ErrorIs(t, err, ErrBadCursor, "Нечитаемый курсор — ошибка вызывающего")

	_, err = posts.List(ctx, 10, strPtr("2026-13-99"))
	assert.ErrorIs(t, err, ErrBadCursor)

	page, err := posts.Feed(ctx, nil, nil, 10, models.SortNewest)
	require.NoError(t, err, "Отсутствие курсора остается допустимым")
	assert.Len(t, page.Items, 1)
}

func TestPostOwnership(t *testing.T) {
	store := memory.New()
	posts := NewPostService(store)
	comments := NewCommentService(store)
	ctx := context.Background()

	post, err := posts.Create(ctx, "title", "body", "alice")
	require.NoError(t, err)

	_, err = posts.Update(ctx, post.ID, "new", "new", "bob")
	assert.ErrorIs(t, err, ErrNotAuthorized, "Чужой пост редактировать нельзя")

	_, err = posts.Update(ctx, "non-existent-id", "new", "new", "bob")
	assert.ErrorIs(t, err, storage.ErrPostNotFound,
		"Для отсутствующего поста должен возвращаться NotFound, а не NotAuthorized")

	_, err = posts.Delete(ctx, post.ID, "bob")
	assert.ErrorIs(t, err, ErrNotAuthorized)

	root, err := comments.CreateRoot(ctx, "hello", "bob", post.ID)
	require.NoError(t, err)
	_, err = comments.CreateReply(ctx, "hi", "carol", root.ID)
	require.NoError(t, err)

	removed, err := posts.Delete(ctx, post.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, removed, "Вместе с постом удаляется все дерево комментариев")

	_, err = posts.Get(ctx, post.ID)
	assert.ErrorIs(t, err, storage.ErrPostNotFound)
}
