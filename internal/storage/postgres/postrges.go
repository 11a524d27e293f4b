package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ButyrinIA/forum/internal/models"
	"github.com/ButyrinIA/forum/internal/storage"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresStorage struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, dsn string) (*PostgresStorage, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %v", err)
	}

	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS posts (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			body TEXT NOT NULL,
			author_id TEXT NOT NULL,
			likes TEXT[] NOT NULL DEFAULT '{}',
			dislikes TEXT[] NOT NULL DEFAULT '{}',
			comments_count INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);
		CREATE TABLE IF NOT EXISTS comments (
			id TEXT PRIMARY KEY,
			post_id TEXT NOT NULL REFERENCES posts(id) ON DELETE CASCADE,
			parent_id TEXT REFERENCES comments(id) ON DELETE CASCADE,
			author_id TEXT NOT NULL,
			text TEXT NOT NULL,
			likes TEXT[] NOT NULL DEFAULT '{}',
			dislikes TEXT[] NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_comments_post_parent ON comments(post_id, parent_id);
		CREATE INDEX IF NOT EXISTS idx_comments_parent_id ON comments(parent_id);
		-- Один корневой комментарий на пару (пост, автор): гонка двух
		-- одновременных вставок разрешается самим индексом
		CREATE UNIQUE INDEX IF NOT EXISTS idx_comments_one_root
			ON comments(post_id, author_id) WHERE parent_id IS NULL;
	`)

	if err != nil {
		return nil, fmt.Errorf("failed to create tables: %v", err)
	}

	return &PostgresStorage{pool: pool}, nil
}

// unavailable помечает неожиданную ошибку хранилища как временную.
func unavailable(err error) error {
	return fmt.Errorf("%w: %v", storage.ErrUnavailable, err)
}

// commentInsertError транслирует ошибку вставки комментария в каноническую.
// Нарушение внешнего ключа означает, что родитель или пост исчезли между
// проверкой и вставкой — это не временный сбой хранилища.
func commentInsertError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "23505":
			return storage.ErrDuplicateRootComment
		case pgErr.Code == "23503" && pgErr.ConstraintName == "comments_parent_id_fkey":
			return storage.ErrParentNotFound
		case pgErr.Code == "23503" && pgErr.ConstraintName == "comments_post_id_fkey":
			return storage.ErrPostNotFound
		}
	}
	return unavailable(err)
}

const postColumns = `id, title, body, author_id, likes, dislikes, comments_count, created_at, updated_at`

func scanPost(row pgx.Row) (*models.Post, error) {
	var p models.Post
	err := row.Scan(&p.ID, &p.Title, &p.Body, &p.AuthorID, &p.Likes, &p.Dislikes,
		&p.CommentsCount, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

const commentColumns = `id, post_id, parent_id, author_id, text, likes, dislikes, created_at, updated_at`

func scanComment(row pgx.Row) (*models.Comment, error) {
	var c models.Comment
	err := row.Scan(&c.ID, &c.PostID, &c.ParentID, &c.AuthorID, &c.Text, &c.Likes, &c.Dislikes,
		&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func collectComments(rows pgx.Rows) ([]models.Comment, error) {
	defer rows.Close()

	var comments []models.Comment
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, err
		}
		comments = append(comments, *c)
	}
	return comments, rows.Err()
}

// orderBy возвращает выражение сортировки; при равенстве ключа всегда
// побеждает более новый комментарий.
func orderBy(key models.SortKey) string {
	switch key {
	case models.SortMostLiked:
		return "cardinality(likes) DESC, created_at DESC"
	case models.SortMostDisliked:
		return "cardinality(dislikes) DESC, created_at DESC"
	default:
		return "created_at DESC"
	}
}

func (s *PostgresStorage) CreatePost(ctx context.Context, post *models.Post) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO posts (id, title, body, author_id, likes, dislikes, comments_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		post.ID, post.Title, post.Body, post.AuthorID,
		post.Likes, post.Dislikes, post.CommentsCount, post.CreatedAt, post.UpdatedAt)
	if err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *PostgresStorage) GetPost(ctx context.Context, id string) (*models.Post, error) {
	post, err := scanPost(s.pool.QueryRow(ctx, `
		SELECT `+postColumns+` FROM posts WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrPostNotFound
	}
	if err != nil {
		return nil, unavailable(err)
	}
	return post, nil
}

func (s *PostgresStorage) UpdatePost(ctx context.Context, id, title, body string) (*models.Post, error) {
	post, err := scanPost(s.pool.QueryRow(ctx, `
		UPDATE posts SET title=$2, body=$3, updated_at=now()
		WHERE id=$1
		RETURNING `+postColumns, id, title, body))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrPostNotFound
	}
	if err != nil {
		return nil, unavailable(err)
	}
	return post, nil
}

func (s *PostgresStorage) DeletePost(ctx context.Context, id string) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, unavailable(err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `DELETE FROM comments WHERE post_id=$1`, id)
	if err != nil {
		return 0, unavailable(err)
	}
	removed := int(tag.RowsAffected())

	tag, err = tx.Exec(ctx, `DELETE FROM posts WHERE id=$1`, id)
	if err != nil {
		return 0, unavailable(err)
	}
	if tag.RowsAffected() == 0 {
		return 0, storage.ErrPostNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, unavailable(err)
	}
	return removed, nil
}

func (s *PostgresStorage) ListPosts(ctx context.Context, limit int, cursor *string) (*models.PaginatedPosts, error) {
	var totalCount int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM posts`).Scan(&totalCount); err != nil {
		return nil, unavailable(err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+postColumns+`
		FROM posts
		WHERE ($1::TIMESTAMPTZ IS NULL OR created_at < $1)
		ORDER BY created_at DESC
		LIMIT $2`, cursor, limit+1)
	if err != nil {
		return nil, unavailable(err)
	}
	defer rows.Close()

	var posts []models.Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, unavailable(err)
		}
		posts = append(posts, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(err)
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

func (s *PostgresStorage) CreateComment(ctx context.Context, comment *models.Comment) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return unavailable(err)
	}
	defer tx.Rollback(ctx)

	if comment.ParentID != nil {
		// Родителем ответа может быть только корневой комментарий
		var one int
		err := tx.QueryRow(ctx, `
			SELECT 1 FROM comments WHERE id=$1 AND parent_id IS NULL`,
			*comment.ParentID).Scan(&one)
		if errors.Is(err, pgx.ErrNoRows) {
			return storage.ErrParentNotFound
		}
		if err != nil {
			return unavailable(err)
		}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO comments (id, post_id, parent_id, author_id, text, likes, dislikes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		comment.ID, comment.PostID, comment.ParentID, comment.AuthorID, comment.Text,
		comment.Likes, comment.Dislikes, comment.CreatedAt, comment.UpdatedAt)
	if err := commentInsertError(err); err != nil {
		return err
	}

	// Счетчик поста меняется в той же транзакции, что и вставка
	tag, err := tx.Exec(ctx, `
		UPDATE posts SET comments_count = comments_count + 1 WHERE id=$1`, comment.PostID)
	if err != nil {
		return unavailable(err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrPostNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *PostgresStorage) GetComment(ctx context.Context, id string) (*models.Comment, error) {
	comment, err := scanComment(s.pool.QueryRow(ctx, `
		SELECT `+commentColumns+` FROM comments WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrCommentNotFound
	}
	if err != nil {
		return nil, unavailable(err)
	}
	return comment, nil
}

func (s *PostgresStorage) ListRootComments(ctx context.Context, postID string, key models.SortKey) ([]models.Comment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+commentColumns+`
		FROM comments
		WHERE post_id=$1 AND parent_id IS NULL
		ORDER BY `+orderBy(key), postID)
	if err != nil {
		return nil, unavailable(err)
	}
	comments, err := collectComments(rows)
	if err != nil {
		return nil, unavailable(err)
	}
	return comments, nil
}

func (s *PostgresStorage) ListReplies(ctx context.Context, parentID string) ([]models.Comment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+commentColumns+`
		FROM comments
		WHERE parent_id=$1
		ORDER BY created_at DESC`, parentID)
	if err != nil {
		return nil, unavailable(err)
	}
	replies, err := collectComments(rows)
	if err != nil {
		return nil, unavailable(err)
	}
	return replies, nil
}

func (s *PostgresStorage) ListComments(ctx context.Context, key models.SortKey, page, limit int) (*models.PaginatedComments, error) {
	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM comments`).Scan(&total); err != nil {
		return nil, unavailable(err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+commentColumns+`
		FROM comments
		ORDER BY `+orderBy(key)+`
		OFFSET $1 LIMIT $2`, (page-1)*limit, limit)
	if err != nil {
		return nil, unavailable(err)
	}
	comments, err := collectComments(rows)
	if err != nil {
		return nil, unavailable(err)
	}

	pages := (total + limit - 1) / limit
	return &models.PaginatedComments{
		Comments: comments,
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

func (s *PostgresStorage) UpdateCommentText(ctx context.Context, id, text string) (*models.Comment, error) {
	comment, err := scanComment(s.pool.QueryRow(ctx, `
		UPDATE comments SET text=$2, updated_at=now()
		WHERE id=$1
		RETURNING `+commentColumns, id, text))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrCommentNotFound
	}
	if err != nil {
		return nil, unavailable(err)
	}
	return comment, nil
}

func (s *PostgresStorage) DeleteCommentCascade(ctx context.Context, id string) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, unavailable(err)
	}
	defer tx.Rollback(ctx)

	var postID string
	err = tx.QueryRow(ctx, `SELECT post_id FROM comments WHERE id=$1`, id).Scan(&postID)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, storage.ErrCommentNotFound
	}
	if err != nil {
		return 0, unavailable(err)
	}

	tag, err := tx.Exec(ctx, `DELETE FROM comments WHERE parent_id=$1`, id)
	if err != nil {
		return 0, unavailable(err)
	}
	replies := int(tag.RowsAffected())

	if _, err := tx.Exec(ctx, `DELETE FROM comments WHERE id=$1`, id); err != nil {
		return 0, unavailable(err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE posts SET comments_count = comments_count - $2 WHERE id=$1`,
		postID, 1+replies)
	if err != nil {
		return 0, unavailable(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, unavailable(err)
	}
	return replies, nil
}

func (s *PostgresStorage) DeleteReply(ctx context.Context, id string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return unavailable(err)
	}
	defer tx.Rollback(ctx)

	var postID string
	err = tx.QueryRow(ctx, `SELECT post_id FROM comments WHERE id=$1`, id).Scan(&postID)
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.ErrCommentNotFound
	}
	if err != nil {
		return unavailable(err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM comments WHERE id=$1`, id); err != nil {
		return unavailable(err)
	}
	_, err = tx.Exec(ctx, `
		UPDATE posts SET comments_count = comments_count - 1 WHERE id=$1`, postID)
	if err != nil {
		return unavailable(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return unavailable(err)
	}
	return nil
}

// toggleQuery собирает UPDATE для переключения реакции: одно выражение,
// множества лайков и дизлайков никогда не пересекаются после применения.
func toggleQuery(table string, kind models.ReactionKind, returning string) string {
	target, opposite := "likes", "dislikes"
	if kind == models.ReactionDislike {
		target, opposite = "dislikes", "likes"
	}
	return fmt.Sprintf(`
		UPDATE %[1]s SET
			%[2]s = CASE WHEN $2 = ANY(%[2]s)
				THEN array_remove(%[2]s, $2)
				ELSE array_append(%[2]s, $2) END,
			%[3]s = array_remove(%[3]s, $2),
			updated_at = now()
		WHERE id = $1
		RETURNING %[4]s`, table, target, opposite, returning)
}

func (s *PostgresStorage) TogglePostReaction(ctx context.Context, id, userID string, kind models.ReactionKind) (*models.Post, bool, error) {
	post, err := scanPost(s.pool.QueryRow(ctx, toggleQuery("posts", kind, postColumns), id, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, storage.ErrPostNotFound
	}
	if err != nil {
		return nil, false, unavailable(err)
	}

	set := post.Likes
	if kind == models.ReactionDislike {
		set = post.Dislikes
	}
	return post, models.HasReaction(set, userID), nil
}

func (s *PostgresStorage) ToggleCommentReaction(ctx context.Context, id, userID string, kind models.ReactionKind) (*models.Comment, bool, error) {
	comment, err := scanComment(s.pool.QueryRow(ctx, toggleQuery("comments", kind, commentColumns), id, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, storage.ErrCommentNotFound
	}
	if err != nil {
		return nil, false, unavailable(err)
	}

	set := comment.Likes
	if kind == models.ReactionDislike {
		set = comment.Dislikes
	}
	return comment, models.HasReaction(set, userID), nil
}

func (s *PostgresStorage) CommentCounts(ctx context.Context, postIDs []string) (map[string]int, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT post_id, COUNT(*)
		FROM comments
		WHERE post_id = ANY($1) AND parent_id IS NULL
		GROUP BY post_id`, postIDs)
	if err != nil {
		return nil, unavailable(err)
	}
	defer rows.Close()

	counts := make(map[string]int, len(postIDs))
	for rows.Next() {
		var postID string
		var count int
		if err := rows.Scan(&postID, &count); err != nil {
			return nil, unavailable(err)
		}
		counts[postID] = count
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(err)
	}
	return counts, nil
}

func (s *PostgresStorage) CommentedPostIDs(ctx context.Context, userID string, postIDs []string) (map[string]bool, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT post_id
		FROM comments
		WHERE author_id=$1 AND post_id = ANY($2) AND parent_id IS NULL`, userID, postIDs)
	if err != nil {
		return nil, unavailable(err)
	}
	defer rows.Close()

	commented := make(map[string]bool)
	for rows.Next() {
		var postID string
		if err := rows.Scan(&postID); err != nil {
			return nil, unavailable(err)
		}
		commented[postID] = true
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(err)
	}
	return commented, nil
}

func (s *PostgresStorage) Close() error {
	s.pool.Close()
	return nil
}
