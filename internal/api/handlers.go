package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"

	"honestai/internal/auth"
	"honestai/internal/models"
	"honestai/internal/service/media"
	"honestai/internal/worker"
)

// multipart framing allowance on top of the file size limit
const multipartOverhead = 1 << 20

type Accounts interface {
	Register(ctx context.Context, username, password string) (*models.User, error)
	Authenticate(ctx context.Context, username, password string) (*models.User, error)
}

type Media interface {
	StoreUpload(ctx context.Context, user *models.User, displayName string, r io.Reader) (*models.Upload, error)
	ListAnalysisHistory(ctx context.Context, user *models.User, q media.HistoryQuery) ([]models.AnalysisResult, error)
	GetAnalysis(ctx context.Context, user *models.User, id int64) (*models.AnalysisResult, error)
}

type AnalysisRunner interface {
	Run(ctx context.Context, user *models.User, filename string) (*models.AnalysisResult, error)
}

type Pinger interface {
	PingContext(ctx context.Context) error
}

// Handler wires HTTP routes to the account, media and analysis services.
type Handler struct {
	accounts       Accounts
	tokens         *auth.Service
	resolver       *auth.Resolver
	media          Media
	analysis       AnalysisRunner
	db             Pinger
	maxUploadBytes int64
}

// Deps groups what NewHandler needs.
type Deps struct {
	Accounts       Accounts
	Tokens         *auth.Service
	Resolver       *auth.Resolver
	Media          Media
	Analysis       AnalysisRunner
	DB             Pinger
	MaxUploadBytes int64
}

// NewHandler constructs a Handler instance.
func NewHandler(d Deps) *Handler {
	return &Handler{
		accounts:       d.Accounts,
		tokens:         d.Tokens,
		resolver:       d.Resolver,
		media:          d.Media,
		analysis:       d.Analysis,
		db:             d.DB,
		maxUploadBytes: d.MaxUploadBytes,
	}
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/healthz", h.healthz)

	authGroup := router.Group("/auth")
	authGroup.POST("/register", h.register)
	authGroup.POST("/login", h.login)

	authMW := h.resolver.Middleware()
	authGroup.POST("/logout", authMW, h.logout)
	authGroup.GET("/me", authMW, h.me)

	router.POST("/uploads", authMW, h.upload)

	analysis := router.Group("/analysis", authMW)
	analysis.GET("", h.runAnalysis)
	analysis.GET("/history", h.listHistory)
	analysis.GET("/:id", h.getAnalysis)
}

type credentialsRequest struct {
	Username string `json:"username" form:"username"`
	Password string `json:"password" form:"password"`
}

func (h *Handler) register(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	user, err := h.accounts.Register(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newUserView(user))
}

func (h *Handler) login(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	user, err := h.accounts.Authenticate(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		writeError(c, err)
		return
	}
	token, err := h.tokens.IssueToken(user)
	if err != nil {
		log.Error("issue token failed", "user_id", user.ID, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "issue token failed"})
		return
	}
	c.JSON(http.StatusOK, tokenView{
		AccessToken: token.Value,
		TokenType:   "bearer",
		ExpiresAt:   token.ExpiresAt,
	})
}

func (h *Handler) logout(c *gin.Context) {
	claims, ok := auth.ClaimsFromContext(c)
	if !ok {
		writeError(c, models.ErrUnauthorized)
		return
	}
	if err := h.tokens.RevokeToken(c.Request.Context(), claims); err != nil {
		log.Error("revoke token failed", "subject", claims.Subject, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "logout failed"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) me(c *gin.Context) {
	user, ok := auth.UserFromContext(c)
	if !ok {
		writeError(c, models.ErrUnauthorized)
		return
	}
	c.JSON(http.StatusOK, newUserView(user))
}

func (h *Handler) upload(c *gin.Context) {
	user, ok := auth.UserFromContext(c)
	if !ok {
		writeError(c, models.ErrUnauthorized)
		return
	}
	if h.maxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes+multipartOverhead)
	}
	file, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	f, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "open file failed"})
		return
	}
	defer f.Close()

	up, err := h.media.StoreUpload(c.Request.Context(), user, file.Filename, f)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newUploadView(up))
}

func (h *Handler) runAnalysis(c *gin.Context) {
	user, ok := auth.UserFromContext(c)
	if !ok {
		writeError(c, models.ErrUnauthorized)
		return
	}
	filename := strings.TrimSpace(c.Query("filename"))
	if filename == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "filename is required"})
		return
	}
	result, err := h.analysis.Run(c.Request.Context(), user, filename)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newAnalysisView(*result))
}

func (h *Handler) listHistory(c *gin.Context) {
	user, ok := auth.UserFromContext(c)
	if !ok {
		writeError(c, models.ErrUnauthorized)
		return
	}
	q := media.DefaultHistoryQuery()
	var err error
	if q.Skip, err = intQuery(c, "skip", q.Skip); err != nil {
		writeError(c, err)
		return
	}
	if q.Limit, err = intQuery(c, "limit", q.Limit); err != nil {
		writeError(c, err)
		return
	}
	if raw, ok := c.GetQuery("sort"); ok {
		q.Sort = models.SortOrder(strings.ToLower(strings.TrimSpace(raw)))
	}

	results, err := h.media.ListAnalysisHistory(c.Request.Context(), user, q)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newAnalysisViews(results))
}

func (h *Handler) getAnalysis(c *gin.Context) {
	user, ok := auth.UserFromContext(c)
	if !ok {
		writeError(c, models.ErrUnauthorized)
		return
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid analysis id"})
		return
	}
	result, err := h.media.GetAnalysis(c.Request.Context(), user, id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newAnalysisView(*result))
}

func (h *Handler) healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if h.db != nil {
		if err := h.db.PingContext(ctx); err != nil {
			log.Warn("health check failed", "err", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func intQuery(c *gin.Context, key string, def int) (int, error) {
	raw, ok := c.GetQuery(key)
	if !ok {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", models.ErrValidation, key)
	}
	return n, nil
}

// writeError maps domain errors onto status codes. Messages of unexpected
// errors are logged, not returned.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	msg := "internal server error"
	switch {
	case errors.Is(err, models.ErrUnauthorized), errors.Is(err, models.ErrInvalidToken):
		status, msg = http.StatusUnauthorized, models.ErrUnauthorized.Error()
		c.Header("WWW-Authenticate", "Bearer")
	case errors.Is(err, models.ErrInvalidCredentials):
		status, msg = http.StatusUnauthorized, models.ErrInvalidCredentials.Error()
	case errors.Is(err, models.ErrValidation):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, models.ErrDuplicateIdentity):
		status, msg = http.StatusConflict, models.ErrDuplicateIdentity.Error()
	case errors.Is(err, models.ErrNotFound):
		status, msg = http.StatusNotFound, models.ErrNotFound.Error()
	case errors.Is(err, worker.ErrDispatcherBusy):
		status, msg = http.StatusTooManyRequests, "server is busy, please retry"
	case errors.Is(err, worker.ErrDispatcherStopped):
		status, msg = http.StatusServiceUnavailable, "server is shutting down"
	case errors.Is(err, models.ErrAnalysisFailed):
		status, msg = http.StatusBadGateway, models.ErrAnalysisFailed.Error()
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status, msg = http.StatusServiceUnavailable, "request cancelled"
	case errors.Is(err, models.ErrStorageFailure):
		msg = models.ErrStorageFailure.Error()
	}
	if status >= http.StatusInternalServerError {
		log.Error("request failed", "method", c.Request.Method, "path", c.FullPath(), "status", status, "err", err)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}
