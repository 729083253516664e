package app

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/kethan1/Blogger101-website/internal/authpw"
	"github.com/kethan1/Blogger101-website/internal/blog"
	"github.com/kethan1/Blogger101-website/internal/comments"
	"github.com/kethan1/Blogger101-website/internal/config"
	"github.com/kethan1/Blogger101-website/internal/session"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators the HTTP layer dispatches to.
type Deps struct {
	Config   config.Config
	DB       Pinger
	Blog     *blog.Service
	Comments *comments.Service
	Auth     *authpw.Service
	Sessions session.Store
}

type Service struct {
	cfg      config.Config
	db       Pinger
	blog     *blog.Service
	comments *comments.Service
	auth     *authpw.Service
	sessions session.Store
}

func NewService(deps Deps) *Service {
	return &Service{
		cfg:      deps.Config,
		db:       deps.DB,
		blog:     deps.Blog,
		comments: deps.Comments,
		auth:     deps.Auth,
		sessions: deps.Sessions,
	}
}

// Ping checks the health of service dependencies (database, etc.)
func (s *Service) Ping(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	return s.db.Ping(ctx)
}

// PingSessions checks the session backend when it can report its health.
func (s *Service) PingSessions(ctx context.Context) error {
	pinger, ok := s.sessions.(Pinger)
	if !ok {
		return nil
	}
	return pinger.Ping(ctx)
}

// SMTPConfigured decides whether verification tokens are echoed back to the
// caller. They are only echoed when no mail would reach the user.
func (s *Service) SMTPConfigured() bool {
	return s.auth.MailConfigured()
}

func (s *Service) StartSession(ctx context.Context, identity session.Identity) (string, error) {
	id := session.NewID()
	if err := s.sessions.Save(ctx, id, identity, s.cfg.SessionTTL); err != nil {
		return "", err
	}
	return id, nil
}

// SessionFromCookie resolves a cookie value. Unknown or expired ids yield nil
// without an error.
func (s *Service) SessionFromCookie(ctx context.Context, id string) (*session.Identity, error) {
	if strings.TrimSpace(id) == "" {
		return nil, nil
	}
	identity, err := s.sessions.Lookup(ctx, id)
	if errors.Is(err, session.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &identity, nil
}

func (s *Service) EndSession(ctx context.Context, id string) {
	if id == "" {
		return
	}
	if err := s.sessions.Revoke(ctx, id); err != nil {
		log.Warn().Err(err).Msg("session: revoke failed")
	}
}
