package handler

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/quillchat/quill/internal/audit"
	"github.com/quillchat/quill/internal/auth"
	"github.com/quillchat/quill/internal/domain"
	"github.com/quillchat/quill/internal/log"
	"github.com/quillchat/quill/internal/repository"
	"github.com/quillchat/quill/internal/response"
	"github.com/quillchat/quill/internal/storage"
)

const (
	minUsernameLen = 3
	minPasswordLen = 5

	uploadURLTTL = 15 * time.Minute
)

// HTTPHandler serves the CRUD surface around the fanout core: credential
// issuance, message history, user listing, and attachment downloads.
type HTTPHandler struct {
	users    repository.UserRepository
	messages repository.MessageRepository
	resolver *auth.Resolver
	files    storage.Storage
	tokenTTL time.Duration
}

// NewHTTPHandler creates the HTTP handler.
func NewHTTPHandler(
	users repository.UserRepository,
	messages repository.MessageRepository,
	resolver *auth.Resolver,
	files storage.Storage,
	tokenTTL time.Duration,
) *HTTPHandler {
	return &HTTPHandler{
		users:    users,
		messages: messages,
		resolver: resolver,
		files:    files,
		tokenTTL: tokenTTL,
	}
}

// RegisterRoutes registers all HTTP routes.
func (h *HTTPHandler) RegisterRoutes(r *gin.Engine) {
	r.POST("/register", h.Register)
	r.POST("/login", h.Login)
	r.POST("/logout", h.Logout)
	r.GET("/profile", h.Profile)
	r.GET("/messages/:userId", h.Messages)
	r.GET("/people", h.People)
	r.GET("/uploads/:name", h.Upload)

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})
}

// Register creates an account and signs the caller in.
func (h *HTTPHandler) Register(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	var req domain.CredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if len(req.Username) < minUsernameLen {
		response.BadRequest(c, "username must be at least 3 characters long")
		return
	}
	if len(req.Password) < minPasswordLen {
		response.BadRequest(c, "password must be at least 5 characters long")
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		l.Error().Err(err).Msg("failed to hash password")
		response.InternalError(c, "failed to register user")
		return
	}

	user := &domain.User{
		Username:     req.Username,
		PasswordHash: string(hashed),
	}
	if err := h.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrUsernameExists) {
			response.Conflict(c, "user already registered")
			return
		}
		l.Error().Err(err).Msg("failed to create user")
		response.InternalError(c, "failed to register user")
		return
	}

	token, err := h.resolver.Issue(user.ID, user.Username)
	if err != nil {
		l.Error().Err(err).Str(log.FieldUserID, user.ID).Msg("failed to sign session token")
		response.InternalError(c, "failed to issue session")
		return
	}

	h.setSessionCookie(c, token)
	audit.Log(ctx, audit.ActionRegister, user.ID, "user registered")
	response.Created(c, gin.H{"id": user.ID})
}

// Login verifies credentials and issues a session cookie.
func (h *HTTPHandler) Login(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	var req domain.CredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	user, err := h.users.GetByUsername(ctx, req.Username)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			audit.LogWithDetail(ctx, audit.ActionLoginFailed, "", req.Username, "login failed: user not found")
			response.Unauthorized(c, "user not found")
			return
		}
		l.Error().Err(err).Msg("failed to look up user")
		response.InternalError(c, "login failed")
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		audit.LogWithDetail(ctx, audit.ActionLoginFailed, user.ID, req.Username, "login failed: wrong password")
		response.Unauthorized(c, "incorrect password")
		return
	}

	token, err := h.resolver.Issue(user.ID, user.Username)
	if err != nil {
		l.Error().Err(err).Str(log.FieldUserID, user.ID).Msg("failed to sign session token")
		response.InternalError(c, "failed to issue session")
		return
	}

	h.setSessionCookie(c, token)
	audit.Log(ctx, audit.ActionLogin, user.ID, "user logged in")
	response.Created(c, gin.H{"id": user.ID})
}

// Logout clears the session cookie.
func (h *HTTPHandler) Logout(c *gin.Context) {
	identity, err := h.resolver.FromRequest(c.Request)
	if err == nil {
		audit.Log(c.Request.Context(), audit.ActionLogout, identity.UserID, "user logged out")
	}

	c.SetSameSite(http.SameSiteNoneMode)
	c.SetCookie(auth.CookieName, "", -1, "/", "", true, true)
	response.Success(c, "OK")
}

// Profile returns the verified identity behind the session cookie.
func (h *HTTPHandler) Profile(c *gin.Context) {
	identity, err := h.resolver.FromRequest(c.Request)
	if err != nil {
		response.Unauthorized(c, "no user is logged in")
		return
	}

	response.Success(c, gin.H{
		"userId":   identity.UserID,
		"username": identity.Username,
	})
}

// Messages returns the conversation between the caller and another user,
// ordered by creation time ascending.
func (h *HTTPHandler) Messages(c *gin.Context) {
	ctx := c.Request.Context()

	identity, err := h.resolver.FromRequest(c.Request)
	if err != nil {
		response.Unauthorized(c, "no user is logged in")
		return
	}

	peerID := c.Param("userId")
	history, err := h.messages.History(ctx, identity.UserID, peerID)
	if err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldUserID, identity.UserID).Msg("failed to load history")
		response.InternalError(c, "failed to load messages")
		return
	}

	response.Success(c, history)
}

// People lists all known users.
func (h *HTTPHandler) People(c *gin.Context) {
	ctx := c.Request.Context()

	users, err := h.users.List(ctx)
	if err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Msg("failed to list users")
		response.InternalError(c, "failed to list users")
		return
	}

	people := make([]domain.PersonResponse, 0, len(users))
	for _, u := range users {
		people = append(people, domain.PersonResponse{ID: u.ID, Username: u.Username})
	}
	response.Success(c, people)
}

// Upload serves a stored attachment. S3-backed storage redirects to a
// presigned URL; local storage streams the bytes.
func (h *HTTPHandler) Upload(c *gin.Context) {
	ctx := c.Request.Context()

	name := c.Param("name")
	if name == "" || strings.ContainsAny(name, "/\\") || strings.Contains(name, "..") {
		response.BadRequest(c, "invalid file name")
		return
	}

	exists, err := h.files.Exists(ctx, name)
	if err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldFile, name).Msg("failed to check attachment")
		response.InternalError(c, "failed to load file")
		return
	}
	if !exists {
		response.NotFound(c, "file not found")
		return
	}

	if s3, ok := h.files.(*storage.S3Storage); ok {
		url, err := s3.GetURL(ctx, name, uploadURLTTL)
		if err != nil {
			response.NotFound(c, "file not found")
			return
		}
		c.Redirect(http.StatusFound, url)
		return
	}

	rc, err := h.files.Read(ctx, name)
	if err != nil {
		response.NotFound(c, "file not found")
		return
	}
	defer rc.Close()

	contentType := mime.TypeByExtension(filepath.Ext(name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Content-Type", contentType)
	c.Status(http.StatusOK)
	io.Copy(c.Writer, rc)
}

func (h *HTTPHandler) setSessionCookie(c *gin.Context, token string) {
	c.SetSameSite(http.SameSiteNoneMode)
	c.SetCookie(auth.CookieName, token, int(h.tokenTTL.Seconds()), "/", "", true, true)
}
