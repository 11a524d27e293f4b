package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/ButyrinIA/forum/internal/models"
	"github.com/ButyrinIA/forum/internal/storage"
	"github.com/ButyrinIA/forum/internal/view"
	"github.com/google/uuid"
	"github.com/graph-gophers/dataloader/v7"
)

// ErrBadCursor сообщает о нечитаемом курсоре пагинации: ошибка
// вызывающего, до хранилища такой курсор не доходит.
var ErrBadCursor = errors.New("invalid pagination cursor")

// validCursor проверяет, что курсор — метка времени в формате выдачи.
func validCursor(cursor *string) error {
	if cursor == nil {
		return nil
	}
	if _, err := time.Parse(time.RFC3339Nano, *cursor); err != nil {
		return ErrBadCursor
	}
	return nil
}

// FeedPage — страница ленты постов, обогащенная для конкретного зрителя.
type FeedPage struct {
	Items      []view.FeedItem `json:"items"`
	NextCursor *string         `json:"nextCursor"`
	HasMore    bool            `json:"hasMore"`
}

// PostService управляет постами и собирает ленту.
type PostService struct {
	storage storage.Storage
}

func NewPostService(s storage.Storage) *PostService {
	return &PostService{storage: s}
}

func (s *PostService) Create(ctx context.Context, title, body, authorID string) (*models.Post, error) {
	now := time.Now()
	post := &models.Post{
		ID:        uuid.New().String(),
		Title:     title,
		Body:      body,
		AuthorID:  authorID,
		Likes:     []string{},
		Dislikes:  []string{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.storage.CreatePost(ctx, post); err != nil {
		return nil, fmt.Errorf("failed to create post: %w", err)
	}
	return post, nil
}

func (s *PostService) Get(ctx context.Context, id string) (*models.Post, error) {
	return s.storage.GetPost(ctx, id)
}

// owned проверяет сначала существование поста, затем авторство.
func (s *PostService) owned(ctx context.Context, id, callerID string) (*models.Post, error) {
	post, err := s.storage.GetPost(ctx, id)
	if err != nil {
		return nil, err
	}
	if post.AuthorID != callerID {
		return nil, ErrNotAuthorized
	}
	return post, nil
}

func (s *PostService) Update(ctx context.Context, id, title, body, callerID string) (*models.Post, error) {
	if _, err := s.owned(ctx, id, callerID); err != nil {
		return nil, err
	}
	return s.storage.UpdatePost(ctx, id, title, body)
}

// Delete удаляет пост вместе со всем деревом комментариев, возвращает
// количество удаленных комментариев и ответов.
func (s *PostService) Delete(ctx context.Context, id, callerID string) (int, error) {
	if _, err := s.owned(ctx, id, callerID); err != nil {
		return 0, err
	}
	return s.storage.DeletePost(ctx, id)
}

// Toggle переключает реакцию пользователя на пост.
func (s *PostService) Toggle(ctx context.Context, id, userID string, kind models.ReactionKind) (*models.Post, bool, error) {
	return s.storage.TogglePostReaction(ctx, id, userID, kind)
}

// List возвращает страницу постов без обогащения, от новых к старым.
func (s *PostService) List(ctx context.Context, limit int, cursor *string) (*models.PaginatedPosts, error) {
	if err := validCursor(cursor); err != nil {
		return nil, err
	}
	if limit < 1 || limit > 100 {
		limit = 10
	}
	return s.storage.ListPosts(ctx, limit, cursor)
}

// countLoader батчит подсчет корневых комментариев по постам: сколько бы
// постов ни было на странице, хранилище получает один групповой запрос.
func (s *PostService) countLoader() *dataloader.Loader[string, int] {
	batch := func(ctx context.Context, postIDs []string) []*dataloader.Result[int] {
		results := make([]*dataloader.Result[int], len(postIDs))
		counts, err := s.storage.CommentCounts(ctx, postIDs)
		for i, id := range postIDs {
			if err != nil {
				results[i] = &dataloader.Result[int]{Error: err}
				continue
			}
			results[i] = &dataloader.Result[int]{Data: counts[id]}
		}
		return results
	}
	return dataloader.NewBatchedLoader(batch,
		dataloader.WithCache[string, int](&dataloader.NoCache[string, int]{}))
}

// commentedLoader батчит признак "у зрителя есть корневой комментарий".
func (s *PostService) commentedLoader(viewerID string) *dataloader.Loader[string, bool] {
	batch := func(ctx context.Context, postIDs []string) []*dataloader.Result[bool] {
		results := make([]*dataloader.Result[bool], len(postIDs))
		commented, err := s.storage.CommentedPostIDs(ctx, viewerID, postIDs)
		for i, id := range postIDs {
			if err != nil {
				results[i] = &dataloader.Result[bool]{Error: err}
				continue
			}
			results[i] = &dataloader.Result[bool]{Data: commented[id]}
		}
		return results
	}
	return dataloader.NewBatchedLoader(batch,
		dataloader.WithCache[string, bool](&dataloader.NoCache[string, bool]{}))
}

// Feed собирает страницу ленты для зрителя: курсорная пагинация по дате
// создания, проекция каждого поста глазами зрителя, число корневых
// комментариев и признак "я уже комментировал". Лоадеры создаются на
// каждый запрос заново и между соединениями не разделяются.
func (s *PostService) Feed(ctx context.Context, viewerID *string, cursor *string, limit int, key models.SortKey) (*FeedPage, error) {
	if err := validCursor(cursor); err != nil {
		return nil, err
	}
	if limit < 1 || limit > 100 {
		limit = 10
	}

	page, err := s.storage.ListPosts(ctx, limit, cursor)
	if err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}

	postIDs := make([]string, len(page.Posts))
	for i := range page.Posts {
		postIDs[i] = page.Posts[i].ID
	}

	counts := make([]int, len(postIDs))
	if len(postIDs) > 0 {
		values, errs := s.countLoader().LoadMany(ctx, postIDs)()
		for _, e := range errs {
			if e != nil {
				return nil, fmt.Errorf("failed to count comments: %w", e)
			}
		}
		counts = values
	}

	commented := make([]bool, len(postIDs))
	if viewerID != nil && len(postIDs) > 0 {
		values, errs := s.commentedLoader(*viewerID).LoadMany(ctx, postIDs)()
		for _, e := range errs {
			if e != nil {
				return nil, fmt.Errorf("failed to find commented posts: %w", e)
			}
		}
		commented = values
	}

	items := make([]view.FeedItem, len(page.Posts))
	for i := range page.Posts {
		items[i] = view.FeedItem{
			PostView:     view.ProjectPost(&page.Posts[i], viewerID),
			RootComments: counts[i],
			HasCommented: commented[i],
		}
	}

	// Курсор привязан к дате создания; другие ключи сортировки
	// упорядочивают посты внутри страницы
	switch key {
	case models.SortMostLiked:
		sort.SliceStable(items, func(i, j int) bool {
			return items[i].LikesCount > items[j].LikesCount
		})
	case models.SortMostDisliked:
		sort.SliceStable(items, func(i, j int) bool {
			return items[i].DislikesCount > items[j].DislikesCount
		})
	}

	return &FeedPage{
		Items:      items,
		NextCursor: page.NextCursor,
		HasMore:    page.NextCursor != nil,
	}, nil
}
