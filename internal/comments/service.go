// Package comments manages the two-level comment tree attached to each post.
//
// Comment records are stored on their own. Their position lives only in the
// post's placement list, which is rewritten whole on every append.
package comments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kethan1/Blogger101-website/internal/apperr"
	"github.com/kethan1/Blogger101-website/internal/store"
	"github.com/kethan1/Blogger101-website/internal/util"
)

// TextPrefix is prepended to every stored comment body.
const TextPrefix = "&zwnj;"

var (
	// ErrNotApplied means the comment was rejected and nothing was written.
	ErrNotApplied = errors.New("comment not applied")
	// ErrDanglingReference means a placement id has no comment record.
	ErrDanglingReference = errors.New("dangling comment reference")
)

type Kind string

const (
	KindTopLevel Kind = "top-level"
	KindReply    Kind = "reply"
)

// ParseKind accepts both the API spelling ("main", "sub") and the long form.
func ParseKind(raw string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "main", "top-level", "toplevel":
		return KindTopLevel, nil
	case "sub", "reply":
		return KindReply, nil
	default:
		return "", apperr.Validation("unknown comment type %q", raw)
	}
}

type Store interface {
	GetPostByTitle(ctx context.Context, title string) (store.BlogPost, error)
	SetPostComments(ctx context.Context, title string, placement store.Placement) error
	CreateComment(ctx context.Context, comment store.Comment) error
	GetComments(ctx context.Context, ids []string) (map[string]store.Comment, error)
}

type Service struct {
	store Store
	newID func() string
}

func NewService(store Store) *Service {
	return &Service{
		store: store,
		newID: func() string { return util.NewID("") },
	}
}

type AddInput struct {
	BlogTitle string
	Kind      Kind
	Body      string
	Author    string
	TargetID  string
}

// Add stores a new comment and appends it to the post's placement list.
//
// The list is read, modified and written back without any locking, so two
// concurrent appends to the same post can lose one of the placements.
func (s *Service) Add(ctx context.Context, in AddInput) (store.Comment, error) {
	if strings.TrimSpace(in.Author) == "" {
		return store.Comment{}, fmt.Errorf("%w: commenting requires a signed-in user", apperr.ErrUnauthorized)
	}
	if in.Kind != KindTopLevel && in.Kind != KindReply {
		return store.Comment{}, apperr.Validation("unknown comment kind %q", in.Kind)
	}

	post, err := s.store.GetPostByTitle(ctx, in.BlogTitle)
	if errors.Is(err, apperr.ErrNotFound) {
		return store.Comment{}, fmt.Errorf("%w: %w", ErrNotApplied, err)
	}
	if err != nil {
		return store.Comment{}, err
	}

	placement := post.Comments.Clone()
	target := -1
	if in.Kind == KindReply {
		target = placement.Find(in.TargetID)
		if target < 0 {
			return store.Comment{}, fmt.Errorf("%w: %w: %q has no top-level comment %q", ErrNotApplied, apperr.ErrNotFound, in.BlogTitle, in.TargetID)
		}
	}

	comment := store.Comment{
		ID:   s.newID(),
		Text: TextPrefix + in.Body,
		User: in.Author,
	}
	if err := s.store.CreateComment(ctx, comment); err != nil {
		return store.Comment{}, err
	}

	if in.Kind == KindTopLevel {
		placement = append(placement, store.TopLevel{ID: comment.ID, Replies: []store.Reply{}})
	} else {
		placement[target].Replies = append(placement[target].Replies, store.Reply{ID: comment.ID})
	}

	if err := s.store.SetPostComments(ctx, post.Title, placement); err != nil {
		return store.Comment{}, err
	}
	return comment, nil
}

type Node struct {
	Text        string `json:"text"`
	User        string `json:"user"`
	ID          string `json:"id"`
	SubComments []Leaf `json:"sub_comments"`
}

type Leaf struct {
	Text string `json:"text"`
	User string `json:"user"`
	ID   string `json:"id"`
}

// Tree resolves the placement list of a post into comment nodes, preserving
// insertion order at both levels.
func (s *Service) Tree(ctx context.Context, blogTitle string) ([]Node, error) {
	post, err := s.store.GetPostByTitle(ctx, blogTitle)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(post.Comments))
	for _, top := range post.Comments {
		ids = append(ids, top.ID)
		for _, reply := range top.Replies {
			ids = append(ids, reply.ID)
		}
	}
	records, err := s.store.GetComments(ctx, ids)
	if err != nil {
		return nil, err
	}

	resolve := func(id string) (store.Comment, error) {
		record, ok := records[id]
		if !ok {
			return store.Comment{}, fmt.Errorf("%w: post %q references comment %s", ErrDanglingReference, blogTitle, id)
		}
		return record, nil
	}

	nodes := make([]Node, 0, len(post.Comments))
	for _, top := range post.Comments {
		record, err := resolve(top.ID)
		if err != nil {
			return nil, err
		}
		node := Node{Text: record.Text, User: record.User, ID: top.ID, SubComments: make([]Leaf, 0, len(top.Replies))}
		for _, reply := range top.Replies {
			replyRecord, err := resolve(reply.ID)
			if err != nil {
				return nil, err
			}
			node.SubComments = append(node.SubComments, Leaf{Text: replyRecord.Text, User: replyRecord.User, ID: reply.ID})
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}
