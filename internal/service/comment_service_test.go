package service

import (
	"context"
	"testing"
	"time"

	"github.com/ButyrinIA/forum/internal/models"
	"github.com/ButyrinIA/forum/internal/storage"
	"github.com/ButyrinIA/forum/internal/storage/memory"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// мок для интерфейса storage.Storage
type mockStorage struct {
	mock.Mock
}

func (m *mockStorage) CreatePost(ctx context.Context, post *models.Post) error {
	args := m.Called(ctx, post)
	return args.Error(0)
}

func (m *mockStorage) GetPost(ctx context.Context, id string) (*models.Post, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(*models.Post), args.Error(1)
}

func (m *mockStorage) UpdatePost(ctx context.Context, id, title, body string) (*models.Post, error) {
	args := m.Called(ctx, id, title, body)
	return args.Get(0).(*models.Post), args.Error(1)
}

func (m *mockStorage) DeletePost(ctx context.Context, id string) (int, error) {
	args := m.Called(ctx, id)
	return args.Int(0), args.Error(1)
}

func (m *mockStorage) ListPosts(ctx context.Context, limit int, cursor *string) (*models.PaginatedPosts, error) {
	args := m.Called(ctx, limit, cursor)
	return args.Get(0).(*models.PaginatedPosts), args.Error(1)
}

func (m *mockStorage) CreateComment(ctx context.Context, comment *models.Comment) error {
	args := m.Called(ctx, comment)
	return args.Error(0)
}

func (m *mockStorage) GetComment(ctx context.Context, id string) (*models.Comment, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(*models.Comment), args.Error(1)
}

func (m *mockStorage) ListRootComments(ctx context.Context, postID string, sort models.SortKey) ([]models.Comment, error) {
	args := m.Called(ctx, postID, sort)
	return args.Get(0).([]models.Comment), args.Error(1)
}

func (m *mockStorage) ListReplies(ctx context.Context, parentID string) ([]models.Comment, error) {
	args := m.Called(ctx, parentID)
	return args.Get(0).([]models.Comment), args.Error(1)
}

func (m *mockStorage) ListComments(ctx context.Context, sort models.SortKey, page, limit int) (*models.PaginatedComments, error) {
	args := m.Called(ctx, sort, page, limit)
	return args.Get(0).(*models.PaginatedComments), args.Error(1)
}

func (m *mockStorage) UpdateCommentText(ctx context.Context, id, text string) (*models.Comment, error) {
	args := m.Called(ctx, id, text)
	return args.Get(0).(*models.Comment), args.Error(1)
}

func (m *mockStorage) DeleteCommentCascade(ctx context.Context, id string) (int, error) {
	args := m.Called(ctx, id)
	return args.Int(0), args.Error(1)
}

func (m *mockStorage) DeleteReply(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockStorage) TogglePostReaction(ctx context.Context, id, userID string, kind models.ReactionKind) (*models.Post, bool, error) {
	args := m.Called(ctx, id, userID, kind)
	return args.Get(0).(*models.Post), args.Bool(1), args.Error(2)
}

func (m *mockStorage) ToggleCommentReaction(ctx context.Context, id, userID string, kind models.ReactionKind) (*models.Comment, bool, error) {
	args := m.Called(ctx, id, userID, kind)
	return args.Get(0).(*models.Comment), args.Bool(1), args.Error(2)
}

func (m *mockStorage) CommentCounts(ctx context.Context, postIDs []string) (map[string]int, error) {
	args := m.Called(ctx, postIDs)
	return args.Get(0).(map[string]int), args.Error(1)
}

func (m *mockStorage) CommentedPostIDs(ctx context.Context, userID string, postIDs []string) (map[string]bool, error) {
	args := m.Called(ctx, userID, postIDs)
	return args.Get(0).(map[string]bool), args.Error(1)
}

func (m *mockStorage) Close() error {
	args := m.Called()
	return args.Error(0)
}

func seedPost(t *testing.T, store storage.Storage, authorID string) *models.Post {
	t.Helper()
	now := time.Now()
	post := &models.Post{
		ID:        uuid.New().String(),
		Title:     "Тестовый пост",
		Body:      "Содержимое",
		AuthorID:  authorID,
		Likes:     []string{},
		Dislikes:  []string{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, store.CreatePost(context.Background(), post))
	return post
}

func TestCreateRoot(t *testing.T) {
	store := memory.New()
	svc := NewCommentService(store)
	ctx := context.Background()
	post := seedPost(t, store, "author")

	comment, err := svc.CreateRoot(ctx, "hello", "user1", post.ID)
	require.NoError(t, err, "Корневой комментарий должен создаваться")
	assert.True(t, comment.IsRoot())
	assert.Equal(t, post.ID, comment.PostID)

	_, err = svc.CreateRoot(ctx, "again", "user1", post.ID)
	assert.ErrorIs(t, err, storage.ErrDuplicateRootComment,
		"Повторный корневой комментарий должен отклоняться")

	_, err = svc.CreateRoot(ctx, "hello", "user1", "non-existent-id")
	assert.ErrorIs(t, err, storage.ErrPostNotFound, "Комментарий к несуществующему посту должен отклоняться")
}

func TestCreateReply(t *testing.T) {
	store := memory.New()
	svc := NewCommentService(store)
	ctx := context.Background()
	post := seedPost(t, store, "author")

	root, err := svc.CreateRoot(ctx, "hello", "user1", post.ID)
	require.NoError(t, err)

	reply, err := svc.CreateReply(ctx, "hi", "user2", root.ID)
	require.NoError(t, err, "Ответ на корневой комментарий должен создаваться")
	assert.Equal(t, post.ID, reply.PostID, "Ответ должен наследовать postId родителя")
	require.NotNil(t, reply.ParentID)
	assert.Equal(t, root.ID, *reply.ParentID)

	// Повторный корневой проверяется только для корневых: ответ того же
	// автора проходит
	_, err = svc.CreateReply(ctx, "me again", "user1", root.ID)
	assert.NoError(t, err, "Ответ автора корневого комментария должен создаваться")

	_, err = svc.CreateReply(ctx, "hi", "user3", "non-existent-id")
	assert.ErrorIs(t, err, storage.ErrParentNotFound, "Ответ без родителя должен отклоняться")

	_, err = svc.CreateReply(ctx, "nested", "user3", reply.ID)
	assert.ErrorIs(t, err, storage.ErrParentNotFound, "Ответ на ответ должен отклоняться")
}

func TestUpdate(t *testing.T) {
	store := memory.New()
	svc := NewCommentService(store)
	ctx := context.Background()
	post := seedPost(t, store, "author")

	root, err := svc.CreateRoot(ctx, "hello", "user1", post.ID)
	require.NoError(t, err)

	updated, err := svc.Update(ctx, root.ID, "edited", "user1")
	require.NoError(t, err, "Автор должен иметь право редактировать")
	assert.Equal(t, "edited", updated.Text)

	_, err = svc.Update(ctx, root.ID, "hacked", "user2")
	assert.ErrorIs(t, err, ErrNotAuthorized, "Чужой комментарий редактировать нельзя")

	got, err := svc.Get(ctx, root.ID)
	require.NoError(t, err)
	assert.Equal(t, "edited", got.Text, "После отказа текст должен остаться прежним")

	// Существование проверяется раньше авторства
	_, err = svc.Update(ctx, "non-existent-id", "text", "user2")
	assert.ErrorIs(t, err, storage.ErrCommentNotFound,
		"Для отсутствующего комментария должен возвращаться NotFound, а не NotAuthorized")
}

func TestDelete_CascadeScenario(t *testing.T) {
	store := memory.New()
	svc := NewCommentService(store)
	ctx := context.Background()
	post := seedPost(t, store, "author")

	// A комментирует, B отвечает, A удаляет корень
	root, err := svc.CreateRoot(ctx, "hello", "userA", post.ID)
	require.NoError(t, err)

	got, err := store.GetPost(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.CommentsCount, "Счетчик 0 -> 1 после корневого комментария")

	reply, err := svc.CreateReply(ctx, "hi", "userB", root.ID)
	require.NoError(t, err)

	got, err = store.GetPost(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.CommentsCount, "Счетчик 1 -> 2 после ответа")

	deleted, cascaded, err := svc.Delete(ctx, root.ID, "userA")
	require.NoError(t, err)
	assert.Equal(t, root.ID, deleted.ID)
	assert.Equal(t, 1, cascaded, "Должен вернуться один каскадно удаленный ответ")

	got, err = store.GetPost(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.CommentsCount, "Счетчик должен вернуться к нулю")

	_, err = svc.Get(ctx, root.ID)
	assert.ErrorIs(t, err, storage.ErrCommentNotFound, "Корневой комментарий должен исчезнуть")
	_, err = svc.Get(ctx, reply.ID)
	assert.ErrorIs(t, err, storage.ErrCommentNotFound, "Ответ должен исчезнуть каскадом")
}

func TestDelete_NotAuthorized(t *testing.T) {
	store := memory.New()
	svc := NewCommentService(store)
	ctx := context.Background()
	post := seedPost(t, store, "author")

	root, err := svc.CreateRoot(ctx, "hello", "user1", post.ID)
	require.NoError(t, err)

	_, _, err = svc.Delete(ctx, root.ID, "user2")
	assert.ErrorIs(t, err, ErrNotAuthorized, "Чужой комментарий удалять нельзя")

	_, err = svc.Get(ctx, root.ID)
	assert.NoError(t, err, "После отказа комментарий должен остаться")
}

func TestReplyGuards(t *testing.T) {
	store := memory.New()
	svc := NewCommentService(store)
	ctx := context.Background()
	post := seedPost(t, store, "author")

	root, err := svc.CreateRoot(ctx, "hello", "user1", post.ID)
	require.NoError(t, err)

	_, err = svc.UpdateReply(ctx, root.ID, "text", "user1")
	assert.ErrorIs(t, err, ErrNotAReply, "Корневой комментарий нельзя редактировать как ответ")

	_, err = svc.DeleteReply(ctx, root.ID, "user1")
	assert.ErrorIs(t, err, ErrNotAReply, "Корневой комментарий нельзя удалять как ответ")

	reply, err := svc.CreateReply(ctx, "hi", "user2", root.ID)
	require.NoError(t, err)

	updated, err := svc.UpdateReply(ctx, reply.ID, "edited", "user2")
	require.NoError(t, err)
	assert.Equal(t, "edited", updated.Text)

	deleted, err := svc.DeleteReply(ctx, reply.ID, "user2")
	require.NoError(t, err)
	assert.Equal(t, reply.ID, deleted.ID)

	got, err := store.GetPost(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.CommentsCount, "Счетчик должен уменьшиться ровно на единицу")
}

func TestToggleAlternates(t *testing.T) {
	store := memory.New()
	svc := NewCommentService(store)
	ctx := context.Background()
	post := seedPost(t, store, "author")

	root, err := svc.CreateRoot(ctx, "hello", "user1", post.ID)
	require.NoError(t, err)

	expected := []bool{true, false, true}
	for i, want := range expected {
		_, nowActive, err := svc.Toggle(ctx, root.ID, "user2", models.ReactionLike)
		require.NoError(t, err)
		assert.Equal(t, want, nowActive, "nowActive должен чередоваться, шаг %d", i)
	}
}

func TestRootsWithReplies(t *testing.T) {
	store := memory.New()
	svc := NewCommentService(store)
	ctx := context.Background()
	post := seedPost(t, store, "author")

	root1, err := svc.CreateRoot(ctx, "first", "user1", post.ID)
	require.NoError(t, err)
	root2, err := svc.CreateRoot(ctx, "second", "user2", post.ID)
	require.NoError(t, err)
	_, err = svc.CreateReply(ctx, "hi", "user3", root1.ID)
	require.NoError(t, err)

	threads, err := svc.RootsWithReplies(ctx, post.ID, models.SortNewest)
	require.NoError(t, err)
	require.Len(t, threads, 2, "Ожидались два корневых комментария")

	byID := map[string]Thread{}
	for _, th := range threads {
		byID[th.Root.ID] = th
	}
	assert.Len(t, byID[root1.ID].Replies, 1, "У первого корня должен быть один ответ")
	assert.Len(t, byID[root2.ID].Replies, 0, "У второго корня ответов нет")
}

func TestErrorsPropagateUnchanged(t *testing.T) {
	store := &mockStorage{}
	svc := NewCommentService(store)
	ctx := context.Background()

	comment := &models.Comment{ID: "c1", PostID: "p1", AuthorID: "user1"}
	store.On("GetComment", mock.Anything, "c1").Return(comment, nil)
	store.On("UpdateCommentText", mock.Anything, "c1", "text").
		Return((*models.Comment)(nil), storage.ErrUnavailable)

	_, err := svc.Update(ctx, "c1", "text", "user1")
	assert.ErrorIs(t, err, storage.ErrUnavailable,
		"Ошибка хранилища должна доходить до вызывающего без перевода")
	store.AssertExpectations(t)
}
