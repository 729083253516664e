package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"

	"github.com/kethan1/Blogger101-website/internal/apperr"
	"github.com/kethan1/Blogger101-website/internal/blog"
	"github.com/kethan1/Blogger101-website/internal/comments"
	"github.com/kethan1/Blogger101-website/internal/search"
	"github.com/kethan1/Blogger101-website/internal/session"
)

const (
	sessionCookie  = "blogger_session"
	maxUploadBytes = 32 << 20
)

type HTTPServer struct {
	service *Service
}

func NewHTTPServer(service *Service) *HTTPServer {
	return &HTTPServer{service: service}
}

func (s *HTTPServer) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.withMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(s.withSession)

	r.Get("/", s.handleHome)
	r.Get("/myblogs", s.handleMyBlogs)
	r.Get("/user/{username}", s.handleUserBlogs)
	r.Get("/user/{username}/", s.handleUserBlogs)
	r.Route("/blog/{slug}", func(r chi.Router) {
		r.Get("/", s.handleBlogPage)
		r.Get("/pdf", s.handleBlogPDF)
		r.Get("/history", s.handleBlogHistory)
		r.Get("/history/{hash}", s.handleBlogRevision)
	})
	r.Post("/edit/{title}", s.handleEditBlog)
	r.Post("/delete/{title}", s.handleDeleteBlog)

	r.Get("/sign_up", s.handleAuthForm)
	r.Post("/sign_up", s.handleSignUp)
	r.Get("/verify_email/{token}", s.handleVerifyEmail)
	r.Get("/confirm/{token}", s.handleConfirmEmail)
	r.Get("/login", s.handleAuthForm)
	r.Post("/login", s.handleLogin)
	r.Get("/confirm_login/{token}", s.handleConfirmLogin)
	r.Get("/logout", s.handleLogout)
	r.Get("/forgot_password", s.handleAuthForm)
	r.Post("/forgot_password", s.handleForgotPassword)
	r.Get("/change_password/{token}", s.handleChangePasswordForm)
	r.Post("/change_password/{token}", s.handleChangePassword)

	r.Route("/api", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   strings.Split(s.service.cfg.CORSOrigin, ","),
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: s.service.cfg.CORSOrigin != "*",
			MaxAge:           300,
		}))

		r.Get("/health", s.handleHealth)
		r.Get("/ready", s.handleReady)

		r.Route("/v1", func(r chi.Router) {
			r.Get("/blogs", s.handleAPIBlogs)
			r.Get("/search", s.handleSearch)
			r.Post("/post-blog", s.handlePostBlog)
			r.Post("/add-comment", s.handleAddComment)
			r.Get("/blog-comments/{title}", s.handleBlogComments)

			r.Post("/auth/add-user", s.handleAddUser)
			r.Post("/auth/check-user", s.handleCheckUser)
			// Unprefixed paths used by older clients.
			r.Post("/add-user", s.handleAddUser)
			r.Post("/check-user", s.handleCheckUser)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Page not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	})
	return r
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{
		"database": map[string]any{"status": "ok"},
		"sessions": map[string]any{"status": "ok"},
	}

	if err := s.service.Ping(ctx); err != nil {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
		checks["database"] = map[string]any{
			"status": "error",
			"error":  err.Error(),
		}
	}
	if err := s.service.PingSessions(ctx); err != nil {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
		checks["sessions"] = map[string]any{
			"status": "error",
			"error":  err.Error(),
		}
	}

	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

func (s *HTTPServer) handleHome(w http.ResponseWriter, r *http.Request) {
	posts, err := s.service.blog.List(r.Context(), true)
	if err != nil {
		writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"blogs":       posts,
		"loginStatus": session.FromContext(r.Context()),
	})
}

func (s *HTTPServer) handleMyBlogs(w http.ResponseWriter, r *http.Request) {
	identity, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	posts, err := s.service.blog.ListByUser(r.Context(), identity.Username)
	if err != nil {
		writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"blogs": posts, "loginStatus": identity})
}

func (s *HTTPServer) handleUserBlogs(w http.ResponseWriter, r *http.Request) {
	username := pathParam(r, "username")
	posts, err := s.service.blog.ListByUser(r.Context(), username)
	if err != nil {
		writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": username, "blogs": posts})
}

func (s *HTTPServer) handleBlogPage(w http.ResponseWriter, r *http.Request) {
	html, err := s.service.blog.Page(r.Context(), pathParam(r, "slug"))
	if err != nil {
		writeMappedError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, html)
}

func (s *HTTPServer) handleBlogPDF(w http.ResponseWriter, r *http.Request) {
	result, err := s.service.blog.ExportPDF(r.Context(), pathParam(r, "slug"))
	if err != nil {
		writeMappedError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", result.MimeType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": result.Filename}))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

func (s *HTTPServer) handleBlogHistory(w http.ResponseWriter, r *http.Request) {
	history, err := s.service.blog.History(r.Context(), pathParam(r, "slug"))
	if err != nil {
		writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": history})
}

func (s *HTTPServer) handleBlogRevision(w http.ResponseWriter, r *http.Request) {
	content, err := s.service.blog.Revision(r.Context(), pathParam(r, "slug"), pathParam(r, "hash"))
	if err != nil {
		writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"revision": content})
}

func (s *HTTPServer) handleEditBlog(w http.ResponseWriter, r *http.Request) {
	form, err := readForm(r)
	if err != nil {
		writeMappedError(w, r, err)
		return
	}
	post, err := s.service.blog.Edit(r.Context(), session.FromContext(r.Context()), pathParam(r, "title"), form.Get("blog_content"))
	if err != nil {
		writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Blog has been updated", "blog": post})
}

func (s *HTTPServer) handleDeleteBlog(w http.ResponseWriter, r *http.Request) {
	if err := s.service.blog.Delete(r.Context(), session.FromContext(r.Context()), pathParam(r, "title")); err != nil {
		writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Blog has been deleted"})
}

func (s *HTTPServer) handleAPIBlogs(w http.ResponseWriter, r *http.Request) {
	// Any non-empty value selects relative links.
	relative := r.URL.Query().Get("relative") != ""
	posts, err := s.service.blog.List(r.Context(), relative)
	if err != nil {
		writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, posts)
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit, _ := strconv.Atoi(query.Get("limit"))
	offset, _ := strconv.Atoi(query.Get("offset"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	writeJSON(w, http.StatusOK, s.service.blog.Search(r.Context(), search.Query{
		Text:       strings.TrimSpace(query.Get("q")),
		FilterUser: query.Get("user"),
		Limit:      limit,
		Offset:     offset,
	}))
}

func (s *HTTPServer) handlePostBlog(w http.ResponseWriter, r *http.Request) {
	identity, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeMappedError(w, r, invalidBody("expected a multipart form"))
		return
	}

	var image []byte
	file, _, err := r.FormFile("file")
	switch {
	case errors.Is(err, http.ErrMissingFile):
	case err != nil:
		writeMappedError(w, r, invalidBody("could not read uploaded file"))
		return
	default:
		image, err = io.ReadAll(file)
		_ = file.Close()
		if err != nil {
			writeMappedError(w, r, invalidBody("could not read uploaded file"))
			return
		}
	}

	post, err := s.service.blog.Publish(r.Context(), blog.PublishInput{
		Title:       r.FormValue("blog_title"),
		Author:      identity.Username,
		Body:        r.FormValue("blog_content"),
		Image:       image,
		ContentType: http.DetectContentType(image),
	})
	if err != nil {
		writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, post)
}

func (s *HTTPServer) handleAddComment(w http.ResponseWriter, r *http.Request) {
	var body struct {
		BlogTitle      string `json:"blog_title"`
		Type           string `json:"type"`
		CommentContent string `json:"comment_content"`
		ID             string `json:"id"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeMappedError(w, r, err)
		return
	}
	kind, err := comments.ParseKind(body.Type)
	if err != nil {
		writeMappedError(w, r, err)
		return
	}

	author := ""
	if identity := session.FromContext(r.Context()); identity != nil {
		author = identity.Username
	}
	comment, err := s.service.comments.Add(r.Context(), comments.AddInput{
		BlogTitle: body.BlogTitle,
		Kind:      kind,
		Body:      body.CommentContent,
		Author:    author,
		TargetID:  body.ID,
	})
	if errors.Is(err, comments.ErrNotApplied) {
		writeJSON(w, http.StatusNotFound, map[string]any{"worked": false, "code": "NOT_FOUND", "error": err.Error()})
		return
	}
	if err != nil {
		writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"worked": true, "id": comment.ID})
}

func (s *HTTPServer) handleBlogComments(w http.ResponseWriter, r *http.Request) {
	tree, err := s.service.comments.Tree(r.Context(), pathParam(r, "title"))
	if errors.Is(err, apperr.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]any{"found": false, "code": "NOT_FOUND", "error": err.Error()})
		return
	}
	if err != nil {
		writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tree)
}

// pathParam returns a decoded route parameter. chi matches on RawPath when
// the client escaped characters such as '&' or ':', leaving the value encoded.
func pathParam(r *http.Request, key string) string {
	value := chi.URLParam(r, key)
	if r.URL.RawPath == "" {
		return value
	}
	decoded, err := url.PathUnescape(value)
	if err != nil {
		return value
	}
	return decoded
}

func (s *HTTPServer) requireSession(w http.ResponseWriter, r *http.Request) (*session.Identity, bool) {
	identity := session.FromContext(r.Context())
	if identity == nil {
		writeMappedError(w, r, errLoginRequired)
		return nil, false
	}
	return identity, true
}

// withSession attaches the identity behind the session cookie, if any.
func (s *HTTPServer) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(sessionCookie)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}
		identity, err := s.service.SessionFromCookie(r.Context(), cookie.Value)
		if err != nil {
			log.Warn().Err(err).Msg("session: lookup failed")
		}
		if identity != nil {
			r = r.WithContext(session.WithIdentity(r.Context(), *identity))
		}
		next.ServeHTTP(w, r)
	})
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := middleware.GetReqID(r.Context())

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		writer.Header().Set("Cache-Control", "no-store")
		writer.Header().Set("Content-Type", "application/json")
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", writer.status).
			Int64("duration_ms", time.Since(started).Milliseconds()).
			Msg("request")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *HTTPServer) setSessionCookie(w http.ResponseWriter, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    id,
		Path:     "/",
		MaxAge:   int(s.service.cfg.SessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   strings.HasPrefix(s.service.cfg.SiteOrigin, "https://"),
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *HTTPServer) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return invalidBody("invalid JSON body")
	}
	return nil
}

// readForm accepts either a regular form post or a flat JSON object.
func readForm(r *http.Request) (url.Values, error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var fields map[string]string
		if err := decodeBody(r, &fields); err != nil {
			return nil, err
		}
		values := url.Values{}
		for key, value := range fields {
			values.Set(key, value)
		}
		return values, nil
	}
	if err := r.ParseForm(); err != nil {
		return nil, invalidBody("invalid form body")
	}
	return r.PostForm, nil
}
