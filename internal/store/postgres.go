package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/kethan1/Blogger101-website/internal/apperr"
)

const uniqueViolation = "23505"

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const userColumns = `id, first_name, last_name, username, email, password_hash, created_at`

func scanUser(row interface{ Scan(...any) error }) (User, error) {
	var user User
	err := row.Scan(&user.ID, &user.FirstName, &user.LastName, &user.Username, &user.Email, &user.PasswordHash, &user.CreatedAt)
	return user, err
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, fmt.Errorf("%w: user with email %s", apperr.ErrNotFound, email)
	}
	if err != nil {
		return User{}, fmt.Errorf("lookup user by email: %w", err)
	}
	return user, nil
}

func (s *PostgresStore) GetUserByUsername(ctx context.Context, username string) (User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username))
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, fmt.Errorf("%w: user %s", apperr.ErrNotFound, username)
	}
	if err != nil {
		return User{}, fmt.Errorf("lookup user by username: %w", err)
	}
	return user, nil
}

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, first_name, last_name, username, email, password_hash)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, user.ID, user.FirstName, user.LastName, user.Username, user.Email, user.PasswordHash)
	if isUniqueViolation(err) {
		return &apperr.ConflictError{Field: conflictField(err)}
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// UpdatePasswordByHash swaps the password of whichever user currently holds
// oldHash. It reports how many rows changed; zero means the hash is stale.
func (s *PostgresStore) UpdatePasswordByHash(ctx context.Context, oldHash, newHash string) (int64, error) {
	result, err := s.db.ExecContext(ctx, `UPDATE users SET password_hash = $2 WHERE password_hash = $1`, oldHash, newHash)
	if err != nil {
		return 0, fmt.Errorf("update password: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("update password rows: %w", err)
	}
	return affected, nil
}

// SaveUnverifiedUser stages a signup. A second signup for the same email
// replaces the pending record.
func (s *PostgresStore) SaveUnverifiedUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO unverified_users (id, first_name, last_name, username, email, password_hash)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (email) DO UPDATE SET
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			username = EXCLUDED.username,
			password_hash = EXCLUDED.password_hash,
			created_at = now()
	`, user.ID, user.FirstName, user.LastName, user.Username, user.Email, user.PasswordHash)
	if err != nil {
		return fmt.Errorf("stage unverified user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUnverifiedUser(ctx context.Context, email string) (User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM unverified_users WHERE email = $1`, email))
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, fmt.Errorf("%w: pending signup for %s", apperr.ErrNotFound, email)
	}
	if err != nil {
		return User{}, fmt.Errorf("lookup unverified user: %w", err)
	}
	return user, nil
}

func (s *PostgresStore) DeleteUnverifiedUser(ctx context.Context, email string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM unverified_users WHERE email = $1`, email); err != nil {
		return fmt.Errorf("delete unverified user: %w", err)
	}
	return nil
}

const postColumns = `id, title, username, name, body, link, date_released, time_released, comments, image, created_at`

func scanPost(row interface{ Scan(...any) error }) (BlogPost, error) {
	var post BlogPost
	err := row.Scan(
		&post.ID,
		&post.Title,
		&post.User,
		&post.Name,
		&post.Text,
		&post.Link,
		&post.DateReleased,
		&post.TimeReleased,
		&post.Comments,
		&post.Image,
		&post.CreatedAt,
	)
	return post, err
}

func (s *PostgresStore) queryPosts(ctx context.Context, query string, args ...any) ([]BlogPost, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query posts: %w", err)
	}
	defer rows.Close()

	posts := make([]BlogPost, 0)
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		posts = append(posts, post)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate posts: %w", err)
	}
	return posts, nil
}

// ListPosts returns posts in insertion order.
func (s *PostgresStore) ListPosts(ctx context.Context) ([]BlogPost, error) {
	return s.queryPosts(ctx, `SELECT `+postColumns+` FROM blog_posts ORDER BY created_at ASC, id ASC`)
}

func (s *PostgresStore) ListPostsByUser(ctx context.Context, username string) ([]BlogPost, error) {
	return s.queryPosts(ctx, `SELECT `+postColumns+` FROM blog_posts WHERE username = $1 ORDER BY created_at ASC, id ASC`, username)
}

func (s *PostgresStore) GetPostByTitle(ctx context.Context, title string) (BlogPost, error) {
	post, err := scanPost(s.db.QueryRowContext(ctx, `SELECT `+postColumns+` FROM blog_posts WHERE title = $1`, title))
	if errors.Is(err, sql.ErrNoRows) {
		return BlogPost{}, fmt.Errorf("%w: post %q", apperr.ErrNotFound, title)
	}
	if err != nil {
		return BlogPost{}, fmt.Errorf("lookup post: %w", err)
	}
	return post, nil
}

// GetPostByName resolves a page name (slug + ".html"). Colliding slugs resolve
// to the oldest post.
func (s *PostgresStore) GetPostByName(ctx context.Context, name string) (BlogPost, error) {
	post, err := scanPost(s.db.QueryRowContext(ctx, `
		SELECT `+postColumns+` FROM blog_posts WHERE name = $1 ORDER BY created_at ASC, id ASC LIMIT 1
	`, name))
	if errors.Is(err, sql.ErrNoRows) {
		return BlogPost{}, fmt.Errorf("%w: page %s", apperr.ErrNotFound, name)
	}
	if err != nil {
		return BlogPost{}, fmt.Errorf("lookup post by name: %w", err)
	}
	return post, nil
}

func (s *PostgresStore) CreatePost(ctx context.Context, post BlogPost) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO blog_posts (id, title, username, name, body, link, date_released, time_released, comments, image)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, post.ID, post.Title, post.User, post.Name, post.Text, post.Link, post.DateReleased, post.TimeReleased, post.Comments, post.Image)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: a post titled %q already exists", apperr.ErrConflict, post.Title)
	}
	if err != nil {
		return fmt.Errorf("insert post: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdatePostBody(ctx context.Context, title, body string) error {
	return s.execOne(ctx, "update post body", title, `UPDATE blog_posts SET body = $2 WHERE title = $1`, title, body)
}

func (s *PostgresStore) DeletePost(ctx context.Context, title string) error {
	return s.execOne(ctx, "delete post", title, `DELETE FROM blog_posts WHERE title = $1`, title)
}

// SetPostComments replaces the whole placement list of a post.
func (s *PostgresStore) SetPostComments(ctx context.Context, title string, placement Placement) error {
	return s.execOne(ctx, "set post comments", title, `UPDATE blog_posts SET comments = $2 WHERE title = $1`, title, placement)
}

func (s *PostgresStore) execOne(ctx context.Context, op, title, query string, args ...any) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows: %w", op, err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: post %q", apperr.ErrNotFound, title)
	}
	return nil
}

func (s *PostgresStore) CreateComment(ctx context.Context, comment Comment) error {
	if _, err := s.db.ExecContext(ctx, `INSERT INTO comments (id, body, username) VALUES ($1, $2, $3)`, comment.ID, comment.Text, comment.User); err != nil {
		return fmt.Errorf("insert comment: %w", err)
	}
	return nil
}

// GetComments loads the comments with the given ids. Ids with no record are
// absent from the result.
func (s *PostgresStore) GetComments(ctx context.Context, ids []string) (map[string]Comment, error) {
	found := make(map[string]Comment, len(ids))
	if len(ids) == 0 {
		return found, nil
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, body, username, created_at FROM comments WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("query comments: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var comment Comment
		if err := rows.Scan(&comment.ID, &comment.Text, &comment.User, &comment.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		found[comment.ID] = comment
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comments: %w", err)
	}
	return found, nil
}

// conflictField names the users column behind a unique violation, going by
// the default constraint names (users_email_key, users_username_key).
func conflictField(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && strings.Contains(pgErr.ConstraintName, "username") {
		return "username"
	}
	return "email"
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
