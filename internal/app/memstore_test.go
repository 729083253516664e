package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kethan1/Blogger101-website/internal/apperr"
	"github.com/kethan1/Blogger101-website/internal/imagestore"
	"github.com/kethan1/Blogger101-website/internal/store"
)

// memStore is an in-memory stand-in for store.PostgresStore.
type memStore struct {
	mu         sync.Mutex
	users      []store.User
	unverified map[string]store.User
	posts      []store.BlogPost
	comments   map[string]store.Comment
	pingErr    error
}

func newMemStore() *memStore {
	return &memStore{
		unverified: make(map[string]store.User),
		comments:   make(map[string]store.Comment),
	}
}

func (m *memStore) Ping(ctx context.Context) error {
	return m.pingErr
}

func (m *memStore) GetUserByEmail(ctx context.Context, email string) (store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, user := range m.users {
		if user.Email == email {
			return user, nil
		}
	}
	return store.User{}, fmt.Errorf("%w: user with email %s", apperr.ErrNotFound, email)
}

func (m *memStore) GetUserByUsername(ctx context.Context, username string) (store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, user := range m.users {
		if user.Username == username {
			return user, nil
		}
	}
	return store.User{}, fmt.Errorf("%w: user %s", apperr.ErrNotFound, username)
}

func (m *memStore) CreateUser(ctx context.Context, user store.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Email == user.Email {
			return &apperr.ConflictError{Field: "email"}
		}
		if existing.Username == user.Username {
			return &apperr.ConflictError{Field: "username"}
		}
	}
	user.CreatedAt = time.Now()
	m.users = append(m.users, user)
	return nil
}

func (m *memStore) UpdatePasswordByHash(ctx context.Context, oldHash, newHash string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for i := range m.users {
		if m.users[i].PasswordHash == oldHash {
			m.users[i].PasswordHash = newHash
			n++
		}
	}
	return n, nil
}

func (m *memStore) SaveUnverifiedUser(ctx context.Context, user store.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unverified[user.Email] = user
	return nil
}

func (m *memStore) GetUnverifiedUser(ctx context.Context, email string) (store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.unverified[email]
	if !ok {
		return store.User{}, fmt.Errorf("%w: pending signup for %s", apperr.ErrNotFound, email)
	}
	return user, nil
}

func (m *memStore) DeleteUnverifiedUser(ctx context.Context, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.unverified, email)
	return nil
}

func clonePost(post store.BlogPost) store.BlogPost {
	post.Comments = post.Comments.Clone()
	return post
}

func (m *memStore) ListPosts(ctx context.Context) ([]store.BlogPost, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	posts := make([]store.BlogPost, 0, len(m.posts))
	for _, post := range m.posts {
		posts = append(posts, clonePost(post))
	}
	return posts, nil
}

func (m *memStore) ListPostsByUser(ctx context.Context, username string) ([]store.BlogPost, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	posts := make([]store.BlogPost, 0)
	for _, post := range m.posts {
		if post.User == username {
			posts = append(posts, clonePost(post))
		}
	}
	return posts, nil
}

func (m *memStore) find(match func(store.BlogPost) bool) int {
	for i, post := range m.posts {
		if match(post) {
			return i
		}
	}
	return -1
}

func (m *memStore) GetPostByTitle(ctx context.Context, title string) (store.BlogPost, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.find(func(p store.BlogPost) bool { return p.Title == title })
	if i < 0 {
		return store.BlogPost{}, fmt.Errorf("%w: post %q", apperr.ErrNotFound, title)
	}
	return clonePost(m.posts[i]), nil
}

func (m *memStore) GetPostByName(ctx context.Context, name string) (store.BlogPost, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.find(func(p store.BlogPost) bool { return p.Name == name })
	if i < 0 {
		return store.BlogPost{}, fmt.Errorf("%w: post %q", apperr.ErrNotFound, name)
	}
	return clonePost(m.posts[i]), nil
}

func (m *memStore) CreatePost(ctx context.Context, post store.BlogPost) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.find(func(p store.BlogPost) bool { return p.Title == post.Title }) >= 0 {
		return fmt.Errorf("%w: a post titled %q already exists", apperr.ErrConflict, post.Title)
	}
	m.posts = append(m.posts, clonePost(post))
	return nil
}

func (m *memStore) UpdatePostBody(ctx context.Context, title, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.find(func(p store.BlogPost) bool { return p.Title == title })
	if i < 0 {
		return fmt.Errorf("%w: post %q", apperr.ErrNotFound, title)
	}
	m.posts[i].Text = body
	return nil
}

func (m *memStore) DeletePost(ctx context.Context, title string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.find(func(p store.BlogPost) bool { return p.Title == title })
	if i < 0 {
		return fmt.Errorf("%w: post %q", apperr.ErrNotFound, title)
	}
	m.posts = append(m.posts[:i], m.posts[i+1:]...)
	return nil
}

func (m *memStore) SetPostComments(ctx context.Context, title string, placement store.Placement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.find(func(p store.BlogPost) bool { return p.Title == title })
	if i < 0 {
		return fmt.Errorf("%w: post %q", apperr.ErrNotFound, title)
	}
	m.posts[i].Comments = placement.Clone()
	return nil
}

func (m *memStore) CreateComment(ctx context.Context, comment store.Comment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.comments[comment.ID] = comment
	return nil
}

func (m *memStore) GetComments(ctx context.Context, ids []string) (map[string]store.Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	found := make(map[string]store.Comment, len(ids))
	for _, id := range ids {
		if comment, ok := m.comments[id]; ok {
			found[id] = comment
		}
	}
	return found, nil
}

type fakeImages struct {
	err error
}

func (f *fakeImages) Upload(ctx context.Context, image imagestore.Image) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "https://img.test/posts/" + image.Owner + "/cover.png", nil
}

type fakeCaptcha struct {
	score float64
	err   error
}

func (f *fakeCaptcha) Score(ctx context.Context, token, remoteIP string) (float64, error) {
	return f.score, f.err
}
