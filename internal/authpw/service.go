// Package authpw implements email/password accounts with emailed,
// signed-token confirmation for sign-up, risky logins and password resets.
package authpw

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"github.com/kethan1/Blogger101-website/internal/apperr"
	"github.com/kethan1/Blogger101-website/internal/auth"
	"github.com/kethan1/Blogger101-website/internal/session"
	"github.com/kethan1/Blogger101-website/internal/store"
	"github.com/kethan1/Blogger101-website/internal/util"
)

var (
	ErrUserNotFound      = fmt.Errorf("%w: a user with that email was not found", apperr.ErrNotFound)
	ErrIncorrectPassword = fmt.Errorf("%w: incorrect password", apperr.ErrUnauthorized)
)

const (
	DefaultTokenMaxAge     = time.Hour
	DefaultStepUpThreshold = 0.5
)

// UserStore defines the storage interface for auth
type UserStore interface {
	GetUserByEmail(ctx context.Context, email string) (store.User, error)
	GetUserByUsername(ctx context.Context, username string) (store.User, error)
	CreateUser(ctx context.Context, user store.User) error
	UpdatePasswordByHash(ctx context.Context, oldHash, newHash string) (int64, error)
	SaveUnverifiedUser(ctx context.Context, user store.User) error
	GetUnverifiedUser(ctx context.Context, email string) (store.User, error)
	DeleteUnverifiedUser(ctx context.Context, email string) error
}

// Mailer delivers confirmation links. When it is not configured, links are
// not sent and callers receive the raw token instead.
type Mailer interface {
	IsConfigured() bool
	SendSignupConfirmation(to, userName, url string) error
	SendLoginConfirmation(to, userName, url string) error
	SendPasswordReset(to, userName, url string) error
}

type ScoreProvider interface {
	Score(ctx context.Context, token, remoteIP string) (float64, error)
}

type TokenCodec interface {
	Issue(payload, salt string) (string, error)
	Validate(token, salt string, maxAge time.Duration) (string, error)
}

type Config struct {
	SiteOrigin      string
	TokenMaxAge     time.Duration
	StepUpThreshold float64
}

type Service struct {
	store    UserStore
	mailer   Mailer
	captcha  ScoreProvider
	tokens   TokenCodec
	cfg      Config
	hashCost int
}

func NewService(users UserStore, mailer Mailer, captcha ScoreProvider, tokens TokenCodec, cfg Config) *Service {
	if cfg.TokenMaxAge <= 0 {
		cfg.TokenMaxAge = DefaultTokenMaxAge
	}
	if cfg.StepUpThreshold <= 0 {
		cfg.StepUpThreshold = DefaultStepUpThreshold
	}
	cfg.SiteOrigin = strings.TrimRight(cfg.SiteOrigin, "/")
	return &Service{
		store:    users,
		mailer:   mailer,
		captcha:  captcha,
		tokens:   tokens,
		cfg:      cfg,
		hashCost: bcrypt.DefaultCost,
	}
}

// MailConfigured reports whether confirmation links actually leave the server.
func (s *Service) MailConfigured() bool {
	return s.mailer != nil && s.mailer.IsConfigured()
}

func identityOf(user store.User) session.Identity {
	return session.Identity{
		Username:  user.Username,
		Email:     user.Email,
		FirstName: user.FirstName,
		LastName:  user.LastName,
	}
}

type SignUpRequest struct {
	FirstName       string
	LastName        string
	Username        string
	Email           string
	Password        string
	ConfirmPassword string
}

// SignUp stages an unverified account and mails a confirmation link. The
// returned token is the one embedded in that link.
func (s *Service) SignUp(ctx context.Context, req SignUpRequest) (string, error) {
	if req.Password != req.ConfirmPassword {
		return "", apperr.Validation("confirm password does not match password")
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Username = strings.TrimSpace(req.Username)
	if req.Email == "" || req.Username == "" || req.Password == "" {
		return "", apperr.Validation("email, username and password are required")
	}
	if err := checkPasswordLength(req.Password); err != nil {
		return "", err
	}

	if err := s.ensureAvailable(ctx, req.Email, req.Username); err != nil {
		return "", err
	}

	hash, err := s.hash(req.Password)
	if err != nil {
		return "", err
	}

	token, err := s.tokens.Issue(req.Email, auth.SaltEmailConfirm)
	if err != nil {
		return "", fmt.Errorf("issue confirmation token: %w", err)
	}
	if err := s.send(func(m Mailer) error {
		return m.SendSignupConfirmation(req.Email, req.FirstName, s.cfg.SiteOrigin+"/confirm/"+token)
	}); err != nil {
		return "", err
	}

	// A repeated sign-up replaces the pending record for that email.
	err = s.store.SaveUnverifiedUser(ctx, store.User{
		ID:           util.NewID(""),
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
	})
	if err != nil {
		return "", err
	}
	return token, nil
}

func (s *Service) ensureAvailable(ctx context.Context, email, username string) error {
	if _, err := s.store.GetUserByEmail(ctx, email); err == nil {
		return &apperr.ConflictError{Field: "email"}
	} else if !errors.Is(err, apperr.ErrNotFound) {
		return err
	}
	if _, err := s.store.GetUserByUsername(ctx, username); err == nil {
		return &apperr.ConflictError{Field: "username"}
	} else if !errors.Is(err, apperr.ErrNotFound) {
		return err
	}
	return nil
}

// ConfirmEmail promotes the pending account named by the token. A second
// presentation finds nothing pending and fails with not found.
func (s *Service) ConfirmEmail(ctx context.Context, token string) (session.Identity, error) {
	email, err := s.tokens.Validate(token, auth.SaltEmailConfirm, s.cfg.TokenMaxAge)
	if err != nil {
		return session.Identity{}, err
	}
	pending, err := s.store.GetUnverifiedUser(ctx, email)
	if err != nil {
		return session.Identity{}, err
	}
	if err := s.store.CreateUser(ctx, pending); err != nil {
		return session.Identity{}, err
	}
	if err := s.store.DeleteUnverifiedUser(ctx, email); err != nil {
		return session.Identity{}, err
	}
	return identityOf(pending), nil
}

// VerifyEmailPending returns the address a pending confirmation was sent to.
func (s *Service) VerifyEmailPending(_ context.Context, token string) (string, error) {
	return s.tokens.Validate(token, auth.SaltEmailConfirm, s.cfg.TokenMaxAge)
}

type LoginRequest struct {
	Email        string
	Password     string
	CaptchaToken string
	RemoteIP     string
}

// LoginResult carries either a signed-in identity or, when the bot score was
// too low, the step-up token that was mailed instead.
type LoginResult struct {
	Identity       session.Identity
	StepUpRequired bool
	StepUpToken    string
}

func (s *Service) Login(ctx context.Context, req LoginRequest) (LoginResult, error) {
	user, err := s.checkPassword(ctx, req.Email, req.Password)
	if err != nil {
		return LoginResult{}, err
	}

	score, err := s.captcha.Score(ctx, req.CaptchaToken, req.RemoteIP)
	if err != nil {
		return LoginResult{}, err
	}
	if score >= s.cfg.StepUpThreshold {
		return LoginResult{Identity: identityOf(user)}, nil
	}

	log.Info().Str("username", user.Username).Float64("score", score).Msg("auth: login needs email confirmation")
	token, err := s.tokens.Issue(user.Email, auth.SaltEmailConfirm)
	if err != nil {
		return LoginResult{}, fmt.Errorf("issue login token: %w", err)
	}
	if err := s.send(func(m Mailer) error {
		return m.SendLoginConfirmation(user.Email, user.FirstName, s.cfg.SiteOrigin+"/confirm_login/"+token)
	}); err != nil {
		return LoginResult{}, err
	}
	return LoginResult{StepUpRequired: true, StepUpToken: token}, nil
}

func (s *Service) ConfirmLogin(ctx context.Context, token string) (session.Identity, error) {
	email, err := s.tokens.Validate(token, auth.SaltEmailConfirm, s.cfg.TokenMaxAge)
	if err != nil {
		return session.Identity{}, err
	}
	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		return session.Identity{}, err
	}
	return identityOf(user), nil
}

// RequestPasswordReset mails a change-password link. The token carries the
// current password hash, so it stops working once the password changes.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	user, err := s.store.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, apperr.ErrNotFound) {
		return "", ErrUserNotFound
	}
	if err != nil {
		return "", err
	}

	token, err := s.tokens.Issue(user.PasswordHash, auth.SaltChangePassword)
	if err != nil {
		return "", fmt.Errorf("issue reset token: %w", err)
	}
	if err := s.send(func(m Mailer) error {
		return m.SendPasswordReset(user.Email, user.FirstName, s.cfg.SiteOrigin+"/change_password/"+token)
	}); err != nil {
		return "", err
	}
	return token, nil
}

// ChangePassword rewrites whichever account still has the hash carried by
// the token. Read and write are not atomic.
func (s *Service) ChangePassword(ctx context.Context, token, password, confirm string) error {
	if password != confirm {
		return apperr.Validation("password does not match confirm password")
	}
	if password == "" {
		return apperr.Validation("password is required")
	}
	if err := checkPasswordLength(password); err != nil {
		return err
	}
	oldHash, err := s.tokens.Validate(token, auth.SaltChangePassword, s.cfg.TokenMaxAge)
	if err != nil {
		return err
	}
	newHash, err := s.hash(password)
	if err != nil {
		return err
	}
	updated, err := s.store.UpdatePasswordByHash(ctx, oldHash, newHash)
	if err != nil {
		return err
	}
	if updated == 0 {
		return fmt.Errorf("%w: reset link already used", apperr.ErrNotFound)
	}
	return nil
}

// CheckUser verifies credentials without starting a session.
func (s *Service) CheckUser(ctx context.Context, email, password string) (store.User, error) {
	return s.checkPassword(ctx, email, password)
}

type AddUserRequest struct {
	FirstName string
	LastName  string
	Username  string
	Email     string
	Password  string
}

// AddUser creates a verified account directly. When the account cannot be
// created it reports which of "email", "username" or "both" already exist.
func (s *Service) AddUser(ctx context.Context, req AddUserRequest) (string, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Username == "" || req.Password == "" {
		return "", apperr.Validation("email, username and password are required")
	}
	if err := checkPasswordLength(req.Password); err != nil {
		return "", err
	}

	emailTaken, err := s.exists(s.store.GetUserByEmail(ctx, req.Email))
	if err != nil {
		return "", err
	}
	usernameTaken, err := s.exists(s.store.GetUserByUsername(ctx, req.Username))
	if err != nil {
		return "", err
	}
	switch {
	case emailTaken && usernameTaken:
		return "both", nil
	case emailTaken:
		return "email", nil
	case usernameTaken:
		return "username", nil
	}

	hash, err := s.hash(req.Password)
	if err != nil {
		return "", err
	}
	err = s.store.CreateUser(ctx, store.User{
		ID:           util.NewID(""),
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
	})
	var conflict *apperr.ConflictError
	if errors.As(err, &conflict) {
		return conflict.Field, nil
	}
	return "", err
}

func (s *Service) exists(_ store.User, err error) (bool, error) {
	if err == nil {
		return true, nil
	}
	if errors.Is(err, apperr.ErrNotFound) {
		return false, nil
	}
	return false, err
}

func (s *Service) checkPassword(ctx context.Context, email, password string) (store.User, error) {
	user, err := s.store.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, apperr.ErrNotFound) {
		return store.User{}, ErrUserNotFound
	}
	if err != nil {
		return store.User{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return store.User{}, ErrIncorrectPassword
	}
	return user, nil
}

// bcrypt only reads the first 72 bytes of a password.
const maxPasswordBytes = 72

func checkPasswordLength(password string) error {
	if len(password) > maxPasswordBytes {
		return apperr.Validation("password must be at most %d bytes", maxPasswordBytes)
	}
	return nil
}

func (s *Service) hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func (s *Service) send(deliver func(Mailer) error) error {
	if !s.MailConfigured() {
		log.Debug().Msg("auth: email not configured, skipping confirmation mail")
		return nil
	}
	if err := deliver(s.mailer); err != nil {
		return apperr.Upstream("email", err)
	}
	return nil
}
