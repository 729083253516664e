package authpw

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/kethan1/Blogger101-website/internal/apperr"
	"github.com/kethan1/Blogger101-website/internal/auth"
	"github.com/kethan1/Blogger101-website/internal/store"
)

// mockUserStore is a mock implementation of UserStore for testing
type mockUserStore struct {
	users      map[string]store.User // email -> user
	unverified map[string]store.User
}

func newMockUserStore() *mockUserStore {
	return &mockUserStore{
		users:      make(map[string]store.User),
		unverified: make(map[string]store.User),
	}
}

func (m *mockUserStore) GetUserByEmail(ctx context.Context, email string) (store.User, error) {
	if user, ok := m.users[email]; ok {
		return user, nil
	}
	return store.User{}, fmt.Errorf("%w: user %s", apperr.ErrNotFound, email)
}

func (m *mockUserStore) GetUserByUsername(ctx context.Context, username string) (store.User, error) {
	for _, user := range m.users {
		if user.Username == username {
			return user, nil
		}
	}
	return store.User{}, fmt.Errorf("%w: user %s", apperr.ErrNotFound, username)
}

func (m *mockUserStore) CreateUser(ctx context.Context, user store.User) error {
	if _, ok := m.users[user.Email]; ok {
		return &apperr.ConflictError{Field: "email"}
	}
	m.users[user.Email] = user
	return nil
}

func (m *mockUserStore) UpdatePasswordByHash(ctx context.Context, oldHash, newHash string) (int64, error) {
	var n int64
	for email, user := range m.users {
		if user.PasswordHash == oldHash {
			user.PasswordHash = newHash
			m.users[email] = user
			n++
		}
	}
	return n, nil
}

func (m *mockUserStore) SaveUnverifiedUser(ctx context.Context, user store.User) error {
	m.unverified[user.Email] = user
	return nil
}

func (m *mockUserStore) GetUnverifiedUser(ctx context.Context, email string) (store.User, error) {
	if user, ok := m.unverified[email]; ok {
		return user, nil
	}
	return store.User{}, fmt.Errorf("%w: pending %s", apperr.ErrNotFound, email)
}

func (m *mockUserStore) DeleteUnverifiedUser(ctx context.Context, email string) error {
	delete(m.unverified, email)
	return nil
}

type sentLink struct {
	kind string
	to   string
	url  string
}

type fakeMailer struct {
	configured bool
	fail       error
	sent       []sentLink
}

func (f *fakeMailer) IsConfigured() bool { return f.configured }

func (f *fakeMailer) record(kind, to, url string) error {
	if f.fail != nil {
		return f.fail
	}
	f.sent = append(f.sent, sentLink{kind: kind, to: to, url: url})
	return nil
}

func (f *fakeMailer) SendSignupConfirmation(to, _, url string) error {
	return f.record("signup", to, url)
}

func (f *fakeMailer) SendLoginConfirmation(to, _, url string) error {
	return f.record("login", to, url)
}

func (f *fakeMailer) SendPasswordReset(to, _, url string) error {
	return f.record("reset", to, url)
}

type fakeCaptcha struct {
	score float64
	err   error
}

func (f *fakeCaptcha) Score(ctx context.Context, token, remoteIP string) (float64, error) {
	return f.score, f.err
}

type harness struct {
	svc     *Service
	store   *mockUserStore
	mailer  *fakeMailer
	captcha *fakeCaptcha
	now     time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:   newMockUserStore(),
		mailer:  &fakeMailer{configured: true},
		captcha: &fakeCaptcha{score: 0.9},
		now:     time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC),
	}
	codec := auth.NewCodec("test-secret").WithClock(func() time.Time { return h.now })
	h.svc = NewService(h.store, h.mailer, h.captcha, codec, Config{SiteOrigin: "https://blog.test/"})
	h.svc.hashCost = bcrypt.MinCost
	return h
}

func (h *harness) addUser(t *testing.T, username, email, password string) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	h.store.users[email] = store.User{ID: username, FirstName: "Joe", LastName: "Smoe", Username: username, Email: email, PasswordHash: string(hash)}
}

var joeSignUp = SignUpRequest{
	FirstName:       "Joe",
	LastName:        "Smoe",
	Username:        "JoeSmoe",
	Email:           "Joe@Smoe.com",
	Password:        "password",
	ConfirmPassword: "password",
}

func TestSignUpAndConfirm(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	token, err := h.svc.SignUp(ctx, joeSignUp)
	if err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}
	if _, ok := h.store.unverified["joe@smoe.com"]; !ok {
		t.Fatal("expected pending user under lower-cased email")
	}
	if len(h.mailer.sent) != 1 || h.mailer.sent[0].url != "https://blog.test/confirm/"+token {
		t.Fatalf("unexpected mail %+v", h.mailer.sent)
	}

	email, err := h.svc.VerifyEmailPending(ctx, token)
	if err != nil || email != "joe@smoe.com" {
		t.Fatalf("VerifyEmailPending = %q, %v", email, err)
	}

	identity, err := h.svc.ConfirmEmail(ctx, token)
	if err != nil {
		t.Fatalf("ConfirmEmail failed: %v", err)
	}
	if identity.Username != "JoeSmoe" || identity.Email != "joe@smoe.com" {
		t.Errorf("unexpected identity %+v", identity)
	}
	if _, ok := h.store.users["joe@smoe.com"]; !ok {
		t.Error("user was not promoted")
	}
	if len(h.store.unverified) != 0 {
		t.Error("pending record was not removed")
	}

	// Second presentation finds nothing pending.
	if _, err := h.svc.ConfirmEmail(ctx, token); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("second ConfirmEmail error = %v, want ErrNotFound", err)
	}
}

func TestSignUpRejections(t *testing.T) {
	tests := []struct {
		name  string
		setup func(h *harness, t *testing.T)
		req   SignUpRequest
		field string
		want  error
	}{
		{
			name: "password mismatch",
			req: func() SignUpRequest {
				r := joeSignUp
				r.ConfirmPassword = "other"
				return r
			}(),
			want: apperr.ErrValidation,
		},
		{
			name:  "email taken",
			setup: func(h *harness, t *testing.T) { h.addUser(t, "Someone", "joe@smoe.com", "x") },
			req:   joeSignUp,
			want:  apperr.ErrConflict,
			field: "email",
		},
		{
			name:  "username taken",
			setup: func(h *harness, t *testing.T) { h.addUser(t, "JoeSmoe", "other@smoe.com", "x") },
			req:   joeSignUp,
			want:  apperr.ErrConflict,
			field: "username",
		},
		{
			name: "password longer than bcrypt accepts",
			req: func() SignUpRequest {
				r := joeSignUp
				r.Password = strings.Repeat("p", 73)
				r.ConfirmPassword = r.Password
				return r
			}(),
			want: apperr.ErrValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			if tt.setup != nil {
				tt.setup(h, t)
			}
			_, err := h.svc.SignUp(context.Background(), tt.req)
			if !errors.Is(err, tt.want) {
				t.Fatalf("SignUp error = %v, want %v", err, tt.want)
			}
			if tt.field != "" {
				var conflict *apperr.ConflictError
				if !errors.As(err, &conflict) || conflict.Field != tt.field {
					t.Errorf("conflict field = %+v, want %s", conflict, tt.field)
				}
			}
			if len(h.store.unverified) != 0 || len(h.mailer.sent) != 0 {
				t.Error("rejected sign-up must not stage or mail")
			}
		})
	}
}

func TestSignUpMailFailureStagesNothing(t *testing.T) {
	h := newHarness(t)
	h.mailer.fail = errors.New("smtp down")

	_, err := h.svc.SignUp(context.Background(), joeSignUp)
	if !errors.Is(err, apperr.ErrUpstream) {
		t.Fatalf("SignUp error = %v, want ErrUpstream", err)
	}
	if len(h.store.unverified) != 0 {
		t.Error("nothing should be staged when the mail fails")
	}
}

func TestSignUpWithoutMailStillReturnsToken(t *testing.T) {
	h := newHarness(t)
	h.mailer.configured = false

	token, err := h.svc.SignUp(context.Background(), joeSignUp)
	if err != nil || token == "" {
		t.Fatalf("SignUp = %q, %v", token, err)
	}
	if len(h.mailer.sent) != 0 {
		t.Error("unconfigured mailer must not send")
	}
	if h.svc.MailConfigured() {
		t.Error("MailConfigured should be false")
	}
}

func TestConfirmEmailExpired(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	token, err := h.svc.SignUp(ctx, joeSignUp)
	if err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}
	h.now = h.now.Add(time.Hour + time.Second)

	if _, err := h.svc.ConfirmEmail(ctx, token); !errors.Is(err, auth.ErrExpiredToken) {
		t.Fatalf("ConfirmEmail error = %v, want ErrExpiredToken", err)
	}
	if _, ok := h.store.users["joe@smoe.com"]; ok {
		t.Error("expired token must not create the user")
	}
}

func TestLogin(t *testing.T) {
	tests := []struct {
		name       string
		email      string
		password   string
		score      float64
		captchaErr error
		wantErr    error
		wantStepUp bool
	}{
		{name: "unknown email", email: "nobody@smoe.com", password: "password", score: 0.9, wantErr: ErrUserNotFound},
		{name: "wrong password", email: "joe@smoe.com", password: "nope", score: 0.9, wantErr: ErrIncorrectPassword},
		{name: "human", email: "JOE@smoe.com", password: "password", score: 0.9},
		{name: "at threshold", email: "joe@smoe.com", password: "password", score: 0.5},
		{name: "suspicious", email: "joe@smoe.com", password: "password", score: 0.3, wantStepUp: true},
		{name: "captcha down", email: "joe@smoe.com", password: "password", captchaErr: apperr.Upstream("recaptcha", errors.New("timeout")), wantErr: apperr.ErrUpstream},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.addUser(t, "JoeSmoe", "joe@smoe.com", "password")
			h.captcha.score = tt.score
			h.captcha.err = tt.captchaErr

			result, err := h.svc.Login(context.Background(), LoginRequest{Email: tt.email, Password: tt.password, CaptchaToken: "c"})
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Login error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Login failed: %v", err)
			}
			if result.StepUpRequired != tt.wantStepUp {
				t.Fatalf("StepUpRequired = %v, want %v", result.StepUpRequired, tt.wantStepUp)
			}
			if !tt.wantStepUp {
				if result.Identity.Username != "JoeSmoe" {
					t.Errorf("unexpected identity %+v", result.Identity)
				}
				if len(h.mailer.sent) != 0 {
					t.Error("direct login must not send mail")
				}
				return
			}

			if result.Identity.Username != "" {
				t.Error("step-up login must not sign in yet")
			}
			if len(h.mailer.sent) != 1 || h.mailer.sent[0].kind != "login" ||
				h.mailer.sent[0].url != "https://blog.test/confirm_login/"+result.StepUpToken {
				t.Fatalf("unexpected mail %+v", h.mailer.sent)
			}
			identity, err := h.svc.ConfirmLogin(context.Background(), result.StepUpToken)
			if err != nil || identity.Username != "JoeSmoe" {
				t.Fatalf("ConfirmLogin = %+v, %v", identity, err)
			}
		})
	}
}

func TestConfirmLoginRejectsResetToken(t *testing.T) {
	h := newHarness(t)
	h.addUser(t, "JoeSmoe", "joe@smoe.com", "password")

	token, err := h.svc.RequestPasswordReset(context.Background(), "joe@smoe.com")
	if err != nil {
		t.Fatalf("RequestPasswordReset failed: %v", err)
	}
	if _, err := h.svc.ConfirmLogin(context.Background(), token); !errors.Is(err, auth.ErrInvalidToken) {
		t.Fatalf("ConfirmLogin error = %v, want ErrInvalidToken", err)
	}
}

func TestPasswordResetIsSingleUse(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.addUser(t, "JoeSmoe", "joe@smoe.com", "password")

	first, err := h.svc.RequestPasswordReset(ctx, "joe@smoe.com")
	if err != nil {
		t.Fatalf("RequestPasswordReset failed: %v", err)
	}
	h.now = h.now.Add(time.Second)
	second, err := h.svc.RequestPasswordReset(ctx, "joe@smoe.com")
	if err != nil {
		t.Fatalf("RequestPasswordReset failed: %v", err)
	}
	if !strings.HasSuffix(h.mailer.sent[0].url, "/change_password/"+first) {
		t.Errorf("unexpected reset link %s", h.mailer.sent[0].url)
	}

	if err := h.svc.ChangePassword(ctx, first, "new-password", "mismatch"); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("mismatch error = %v, want ErrValidation", err)
	}

	// A second request invalidates nothing until the password changes.
	if err := h.svc.ChangePassword(ctx, second, "new-password", "new-password"); err != nil {
		t.Fatalf("ChangePassword failed: %v", err)
	}
	if _, err := h.svc.CheckUser(ctx, "joe@smoe.com", "new-password"); err != nil {
		t.Fatalf("new password rejected: %v", err)
	}

	for name, token := range map[string]string{"same token": second, "older token": first} {
		if err := h.svc.ChangePassword(ctx, token, "again", "again"); !errors.Is(err, apperr.ErrNotFound) {
			t.Errorf("%s: ChangePassword error = %v, want ErrNotFound", name, err)
		}
	}
	if _, err := h.svc.CheckUser(ctx, "joe@smoe.com", "again"); !errors.Is(err, ErrIncorrectPassword) {
		t.Errorf("stale token must not change the password, got %v", err)
	}
}

func TestRequestPasswordResetUnknownEmail(t *testing.T) {
	h := newHarness(t)
	if _, err := h.svc.RequestPasswordReset(context.Background(), "nobody@smoe.com"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("error = %v, want ErrUserNotFound", err)
	}
	if len(h.mailer.sent) != 0 {
		t.Error("no mail for unknown email")
	}
}

func TestAddUser(t *testing.T) {
	tests := []struct {
		name     string
		req      AddUserRequest
		expected string
	}{
		{name: "created", req: AddUserRequest{Username: "Ann", Email: "ann@smoe.com", Password: "pw"}, expected: ""},
		{name: "email", req: AddUserRequest{Username: "Ann", Email: "joe@smoe.com", Password: "pw"}, expected: "email"},
		{name: "username", req: AddUserRequest{Username: "JoeSmoe", Email: "ann@smoe.com", Password: "pw"}, expected: "username"},
		{name: "both", req: AddUserRequest{Username: "JoeSmoe", Email: "JOE@smoe.com", Password: "pw"}, expected: "both"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.addUser(t, "JoeSmoe", "joe@smoe.com", "password")

			already, err := h.svc.AddUser(context.Background(), tt.req)
			if err != nil {
				t.Fatalf("AddUser failed: %v", err)
			}
			if already != tt.expected {
				t.Fatalf("already = %q, want %q", already, tt.expected)
			}
			if tt.expected == "" {
				if _, err := h.svc.CheckUser(context.Background(), "ann@smoe.com", "pw"); err != nil {
					t.Errorf("added user cannot sign in: %v", err)
				}
			}
		})
	}
}

func TestPasswordLengthLimit(t *testing.T) {
	ctx := context.Background()
	long := strings.Repeat("é", 37) // 74 bytes

	t.Run("add user", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.svc.AddUser(ctx, AddUserRequest{Username: "Ann", Email: "ann@smoe.com", Password: long})
		if !errors.Is(err, apperr.ErrValidation) {
			t.Fatalf("AddUser error = %v, want ErrValidation", err)
		}
		if len(h.store.users) != 0 {
			t.Error("rejected user must not be created")
		}
	})

	t.Run("change password", func(t *testing.T) {
		h := newHarness(t)
		h.addUser(t, "JoeSmoe", "joe@smoe.com", "password")
		token, err := h.svc.RequestPasswordReset(ctx, "joe@smoe.com")
		if err != nil {
			t.Fatalf("RequestPasswordReset failed: %v", err)
		}
		if err := h.svc.ChangePassword(ctx, token, long, long); !errors.Is(err, apperr.ErrValidation) {
			t.Fatalf("ChangePassword error = %v, want ErrValidation", err)
		}
		if _, err := h.svc.CheckUser(ctx, "joe@smoe.com", "password"); err != nil {
			t.Errorf("old password should still work: %v", err)
		}
	})

	t.Run("exactly 72 bytes", func(t *testing.T) {
		h := newHarness(t)
		limit := strings.Repeat("p", 72)
		if _, err := h.svc.AddUser(ctx, AddUserRequest{Username: "Ann", Email: "ann@smoe.com", Password: limit}); err != nil {
			t.Fatalf("AddUser failed: %v", err)
		}
		if _, err := h.svc.CheckUser(ctx, "ann@smoe.com", limit); err != nil {
			t.Errorf("72-byte password rejected: %v", err)
		}
	})
}
