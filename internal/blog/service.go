// Package blog publishes, lists and manages blog posts.
package blog

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/kethan1/Blogger101-website/internal/apperr"
	"github.com/kethan1/Blogger101-website/internal/comments"
	"github.com/kethan1/Blogger101-website/internal/export"
	"github.com/kethan1/Blogger101-website/internal/imagestore"
	"github.com/kethan1/Blogger101-website/internal/revisions"
	"github.com/kethan1/Blogger101-website/internal/search"
	"github.com/kethan1/Blogger101-website/internal/session"
	"github.com/kethan1/Blogger101-website/internal/store"
	"github.com/kethan1/Blogger101-website/internal/util"
)

const (
	dateLayout = "01/02/2006"
	// Stored times use ':' ahead of the microseconds, e.g. 10:00:00:000000.
	timeLayout = "15:04:05.000000"

	historyLimit = 50
)

type Store interface {
	ListPosts(ctx context.Context) ([]store.BlogPost, error)
	ListPostsByUser(ctx context.Context, username string) ([]store.BlogPost, error)
	GetPostByTitle(ctx context.Context, title string) (store.BlogPost, error)
	GetPostByName(ctx context.Context, name string) (store.BlogPost, error)
	CreatePost(ctx context.Context, post store.BlogPost) error
	UpdatePostBody(ctx context.Context, title, body string) error
	DeletePost(ctx context.Context, title string) error
}

type ImageStore interface {
	Upload(ctx context.Context, image imagestore.Image) (string, error)
}

type Indexer interface {
	IndexPost(post search.PostRecord)
	DeletePost(id string)
	Search(q search.Query) search.Response
}

type Revisions interface {
	Record(postID string, content revisions.Content, author, message string) (revisions.CommitInfo, error)
	History(postID string, limit int) ([]revisions.CommitInfo, error)
	ContentAt(postID, hash string) (revisions.Content, error)
}

type CommentTree interface {
	Tree(ctx context.Context, blogTitle string) ([]comments.Node, error)
}

type Exporter interface {
	RenderPage(page export.Page) (string, error)
	PDF(ctx context.Context, page export.Page) (*export.Result, error)
}

// Deps groups the collaborators. Index, Revisions and Exporter are optional.
type Deps struct {
	Store      Store
	Images     ImageStore
	Index      Indexer
	Revisions  Revisions
	Comments   CommentTree
	Exporter   Exporter
	SiteOrigin string
}

type Service struct {
	store      Store
	images     ImageStore
	index      Indexer
	revisions  Revisions
	comments   CommentTree
	exporter   Exporter
	siteOrigin string
	now        func() time.Time
	newID      func() string
}

func NewService(deps Deps) *Service {
	return &Service{
		store:      deps.Store,
		images:     deps.Images,
		index:      deps.Index,
		revisions:  deps.Revisions,
		comments:   deps.Comments,
		exporter:   deps.Exporter,
		siteOrigin: strings.TrimRight(deps.SiteOrigin, "/"),
		now:        time.Now,
		newID:      func() string { return util.NewID("") },
	}
}

// Slug is the URL form of a title. Distinct titles can share a slug; nothing
// here detects that.
func Slug(title string) string {
	return strings.ToLower(strings.ReplaceAll(title, " ", "_"))
}

// ReleasedAt reconstructs the release instant from the stored date and time
// strings. Only years 2000-2099 are accepted.
func ReleasedAt(date, clock string) (time.Time, error) {
	i := strings.LastIndex(clock, ":")
	if i < 0 {
		return time.Time{}, apperr.Validation("release time %q has no fractional part", clock)
	}
	normalized := clock[:i] + "." + clock[i+1:]
	ts, err := time.Parse(dateLayout+timeLayout, date+normalized)
	if err != nil {
		return time.Time{}, apperr.Validation("release timestamp %q %q: %v", date, clock, err)
	}
	if ts.Year() < 2000 || ts.Year() > 2099 {
		return time.Time{}, apperr.Validation("release year %d out of range", ts.Year())
	}
	return ts, nil
}

func formatRelease(ts time.Time) (string, string) {
	clock := ts.Format(timeLayout)
	i := strings.LastIndex(clock, ".")
	return ts.Format(dateLayout), clock[:i] + ":" + clock[i+1:]
}

// List returns every post, newest release first. Posts released at the same
// instant keep store order. Links are made absolute unless relative is set.
func (s *Service) List(ctx context.Context, relative bool) ([]store.BlogPost, error) {
	posts, err := s.store.ListPosts(ctx)
	if err != nil {
		return nil, err
	}
	if err := sortByRelease(posts); err != nil {
		return nil, err
	}
	if !relative {
		for i := range posts {
			posts[i].Link = s.siteOrigin + posts[i].Link
		}
	}
	return posts, nil
}

func (s *Service) ListByUser(ctx context.Context, username string) ([]store.BlogPost, error) {
	posts, err := s.store.ListPostsByUser(ctx, username)
	if err != nil {
		return nil, err
	}
	if err := sortByRelease(posts); err != nil {
		return nil, err
	}
	return posts, nil
}

func sortByRelease(posts []store.BlogPost) error {
	released := make(map[string]time.Time, len(posts))
	for _, post := range posts {
		ts, err := ReleasedAt(post.DateReleased, post.TimeReleased)
		if err != nil {
			return fmt.Errorf("post %q: %w", post.Title, err)
		}
		released[post.ID] = ts
	}
	sort.SliceStable(posts, func(i, j int) bool {
		return released[posts[i].ID].After(released[posts[j].ID])
	})
	return nil
}

type PublishInput struct {
	Title       string
	Author      string
	Body        string
	Image       []byte
	ContentType string
}

// Publish uploads the cover image and then stores the post. A failed upload
// leaves nothing behind.
func (s *Service) Publish(ctx context.Context, in PublishInput) (store.BlogPost, error) {
	if strings.TrimSpace(in.Author) == "" {
		return store.BlogPost{}, fmt.Errorf("%w: publishing requires a signed-in user", apperr.ErrUnauthorized)
	}
	if strings.TrimSpace(in.Title) == "" {
		return store.BlogPost{}, apperr.Validation("blog title is required")
	}

	imageURL, err := s.images.Upload(ctx, imagestore.Image{
		Data:        in.Image,
		ContentType: in.ContentType,
		Owner:       in.Author,
	})
	if err != nil {
		if errors.Is(err, imagestore.ErrEmptyImage) || errors.Is(err, imagestore.ErrFileTooBig) || errors.Is(err, imagestore.ErrInvalidFileType) {
			return store.BlogPost{}, apperr.Validation("%v", err)
		}
		return store.BlogPost{}, apperr.Upstream("image upload", err)
	}

	slug := Slug(in.Title)
	date, clock := formatRelease(s.now().UTC())
	post := store.BlogPost{
		ID:           s.newID(),
		Title:        in.Title,
		User:         in.Author,
		Name:         slug + ".html",
		Text:         in.Body,
		Link:         "/blog/" + slug,
		DateReleased: date,
		TimeReleased: clock,
		Comments:     store.Placement{},
		Image:        imageURL,
	}
	if err := s.store.CreatePost(ctx, post); err != nil {
		return store.BlogPost{}, err
	}

	s.indexPost(post)
	s.recordRevision(post, "Publish "+post.Title)
	return post, nil
}

// Edit replaces the body of a post owned by the caller.
func (s *Service) Edit(ctx context.Context, identity *session.Identity, title, body string) (store.BlogPost, error) {
	post, err := s.owned(ctx, identity, title)
	if err != nil {
		return store.BlogPost{}, err
	}
	if err := s.store.UpdatePostBody(ctx, post.Title, body); err != nil {
		return store.BlogPost{}, err
	}
	post.Text = body

	s.indexPost(post)
	s.recordRevision(post, "Edit "+post.Title)
	return post, nil
}

func (s *Service) Delete(ctx context.Context, identity *session.Identity, title string) error {
	post, err := s.owned(ctx, identity, title)
	if err != nil {
		return err
	}
	if err := s.store.DeletePost(ctx, post.Title); err != nil {
		return err
	}
	if s.index != nil {
		s.index.DeletePost(post.ID)
	}
	return nil
}

func (s *Service) owned(ctx context.Context, identity *session.Identity, title string) (store.BlogPost, error) {
	if identity == nil || identity.Username == "" {
		return store.BlogPost{}, fmt.Errorf("%w: sign in to manage posts", apperr.ErrUnauthorized)
	}
	post, err := s.store.GetPostByTitle(ctx, title)
	if err != nil {
		return store.BlogPost{}, err
	}
	if post.User != identity.Username {
		return store.BlogPost{}, fmt.Errorf("%w: %q belongs to another user", apperr.ErrForbidden, title)
	}
	return post, nil
}

// GetBySlug finds a post by its URL slug. With colliding slugs the oldest
// post wins.
func (s *Service) GetBySlug(ctx context.Context, slug string) (store.BlogPost, error) {
	return s.store.GetPostByName(ctx, strings.ToLower(slug)+".html")
}

func (s *Service) History(ctx context.Context, slug string) ([]revisions.CommitInfo, error) {
	post, err := s.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if s.revisions == nil {
		return []revisions.CommitInfo{}, nil
	}
	return s.revisions.History(post.ID, historyLimit)
}

// Revision returns the post content as it was recorded at a history entry.
func (s *Service) Revision(ctx context.Context, slug, hash string) (revisions.Content, error) {
	post, err := s.GetBySlug(ctx, slug)
	if err != nil {
		return revisions.Content{}, err
	}
	if s.revisions == nil {
		return revisions.Content{}, revisions.ErrRevisionNotFound
	}
	return s.revisions.ContentAt(post.ID, hash)
}

func (s *Service) Search(_ context.Context, q search.Query) search.Response {
	if s.index == nil {
		return search.Response{Results: []search.Result{}, Query: q.Text}
	}
	return s.index.Search(q)
}

// Page renders the post with its comment tree as a standalone HTML page.
func (s *Service) Page(ctx context.Context, slug string) (string, error) {
	page, err := s.page(ctx, slug)
	if err != nil {
		return "", err
	}
	if s.exporter == nil {
		return export.RenderPageHTML(page)
	}
	return s.exporter.RenderPage(page)
}

func (s *Service) ExportPDF(ctx context.Context, slug string) (*export.Result, error) {
	page, err := s.page(ctx, slug)
	if err != nil {
		return nil, err
	}
	if s.exporter == nil {
		return nil, export.ErrPDFDependencyMissing
	}
	return s.exporter.PDF(ctx, page)
}

func (s *Service) page(ctx context.Context, slug string) (export.Page, error) {
	post, err := s.GetBySlug(ctx, slug)
	if err != nil {
		return export.Page{}, err
	}
	page := export.Page{
		Title:    post.Title,
		User:     post.User,
		Released: post.DateReleased,
		Image:    post.Image,
		Body:     template.HTML(post.Text),
	}
	if s.comments == nil {
		return page, nil
	}
	nodes, err := s.comments.Tree(ctx, post.Title)
	if err != nil {
		return export.Page{}, err
	}
	for _, node := range nodes {
		comment := export.Comment{ID: node.ID, User: node.User, Text: node.Text}
		for _, leaf := range node.SubComments {
			comment.Replies = append(comment.Replies, export.Comment{ID: leaf.ID, User: leaf.User, Text: leaf.Text})
		}
		page.Comments = append(page.Comments, comment)
	}
	return page, nil
}

func (s *Service) indexPost(post store.BlogPost) {
	if s.index == nil {
		return
	}
	s.index.IndexPost(search.PostRecord{
		ID:    post.ID,
		Title: post.Title,
		User:  post.User,
		Link:  post.Link,
		Text:  post.Text,
	})
}

// recordRevision never fails the request; history is best effort.
func (s *Service) recordRevision(post store.BlogPost, message string) {
	if s.revisions == nil {
		return
	}
	content := revisions.Content{Title: post.Title, Text: post.Text, Image: post.Image}
	if _, err := s.revisions.Record(post.ID, content, post.User, message); err != nil {
		log.Warn().Err(err).Str("post_id", post.ID).Msg("blog: record revision")
	}
}
