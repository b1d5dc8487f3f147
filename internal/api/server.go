package api

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/david/jv-board/internal/auth"
	"github.com/david/jv-board/internal/board"
	"github.com/david/jv-board/internal/filter"
	"github.com/david/jv-board/internal/ingest"
	"github.com/david/jv-board/internal/models"
	"github.com/david/jv-board/internal/prefs"
)

// Board is the project collection the API serves.
type Board interface {
	Current() *board.Collection
	Project(id string) (models.Project, error)
	Categories() []string
	Refresh(ctx context.Context) (board.RefreshReport, error)
	ReplaceFromImport(ctx context.Context, projects []models.Project) (models.RefreshRun, error)
	SetShares(ctx context.Context, noticeNo string, names []string) error
}

// Store holds per-user preferences and the refresh history.
type Store interface {
	GetPreferences(ctx context.Context, userID uuid.UUID) (prefs.Preferences, error)
	SavePreferences(ctx context.Context, userID uuid.UUID, p prefs.Preferences) error
	ListRuns(ctx context.Context, limit int) ([]models.RefreshRun, error)
}

type Accounts interface {
	Login(ctx context.Context, req auth.LoginRequest) (*auth.AuthResponse, error)
	CreateUser(ctx context.Context, req auth.CreateUserRequest) (*models.User, error)
	User(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// RawFeeds produces the debug dump of both remote feeds.
type RawFeeds interface {
	DumpRaw(ctx context.Context) ingest.RawDump
}

type Server struct {
	Board    Board
	Store    Store
	Accounts Accounts
	Feeds    RawFeeds
	Echo     *echo.Echo

	// Background job tracking
	jobMu      sync.Mutex
	runningJob *backgroundJob
}

type backgroundJob struct {
	ID        string             `json:"id"`
	Status    string             `json:"status"` // running, completed, failed
	StartedAt time.Time          `json:"started_at"`
	EndedAt   time.Time          `json:"ended_at,omitempty"`
	Result    any                `json:"result,omitempty"`
	Error     string             `json:"error,omitempty"`
	Cancel    context.CancelFunc `json:"-"`
}

const refreshJobTimeout = 5 * time.Minute

var (
	adminSecretOnce    sync.Once
	adminSecretRuntime string
	adminSecretErr     error
)

func NewServer(b Board, store Store, accounts Accounts, feeds RawFeeds) *Server {
	e := echo.New()
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	// CORS: allow frontend origins from env or default to localhost
	allowedOrigins := []string{"http://localhost:4200"}
	if extra := os.Getenv("CORS_ORIGINS"); extra != "" {
		for _, o := range strings.Split(extra, ",") {
			o = strings.TrimSpace(o)
			if o != "" {
				allowedOrigins = append(allowedOrigins, o)
			}
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: allowedOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, "X-Admin-Secret"},
	}))

	s := &Server{
		Board:    b,
		Store:    store,
		Accounts: accounts,
		Feeds:    feeds,
		Echo:     e,
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	s.Echo.GET("/health", s.handleHealth)
	api := s.Echo.Group("/api/v1")
	api.POST("/auth/login", s.handleLogin)

	// Signed-in routes
	user := api.Group("")
	user.Use(auth.Middleware)
	user.GET("/projects", s.handleListProjects)
	user.GET("/projects/:id", s.handleGetProject)
	user.GET("/projects/:id/share", s.handleShareProject)
	user.POST("/projects/:id/hide", s.handleHideProject)
	user.DELETE("/projects/:id/hide", s.handleUnhideProject)
	user.GET("/me", s.handleMe)
	user.PUT("/me/preferences", s.handleUpdatePreferences)
	user.POST("/me/preferences/import", s.handleImportPreferences)
	user.GET("/categories", s.handleCategories)

	admin := api.Group("/admin")
	admin.Use(s.adminMiddleware)
	admin.POST("/refresh", s.handleRefresh)
	admin.GET("/job/:id", s.handleJobStatus)
	admin.POST("/import", s.handleImport)
	admin.GET("/raw", s.handleRawDump)
	admin.GET("/runs", s.handleListRuns)
	admin.PUT("/shares/:notice", s.handleSetShares)
	admin.POST("/users", s.handleCreateUser)
}

func (s *Server) handleHealth(c echo.Context) error {
	cur := s.Board.Current()
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":     "ok",
		"projects":   len(cur.Projects),
		"updated_at": cur.UpdatedAt,
	})
}

func (s *Server) handleLogin(c echo.Context) error {
	var req auth.LoginRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}

	resp, err := s.Accounts.Login(c.Request().Context(), req)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCreds) {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Invalid credentials"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, resp)
}

// viewerState is the signed-in user with their preferences.
type viewerState struct {
	user  *models.User
	prefs prefs.Preferences
}

func (v viewerState) viewer() filter.Viewer {
	return v.prefs.Viewer(v.user.Name, v.user.Username)
}

func (s *Server) loadViewer(c echo.Context) (viewerState, error) {
	userID, err := auth.GetUserIDFromContext(c)
	if err != nil {
		return viewerState{}, echo.NewHTTPError(http.StatusUnauthorized, "Unauthorized")
	}
	ctx := c.Request().Context()

	user, err := s.Accounts.User(ctx, userID)
	if err != nil {
		return viewerState{}, echo.NewHTTPError(http.StatusUnauthorized, "Unknown user")
	}
	p, err := s.Store.GetPreferences(ctx, userID)
	if err != nil {
		return viewerState{}, echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return viewerState{user: user, prefs: p}, nil
}

func (s *Server) handleListProjects(c echo.Context) error {
	vs, err := s.loadViewer(c)
	if err != nil {
		return err
	}

	criteria := vs.prefs.Criteria(
		filter.ParseStatusFilter(c.QueryParam("status")),
		strings.TrimSpace(c.QueryParam("q")),
	)
	if raw := c.QueryParam("categories"); raw != "" {
		criteria.Categories = splitCSV(raw)
	}

	from, err := parseDay(c.QueryParam("from"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid from date, expected YYYY-MM-DD"})
	}
	to, err := parseDay(c.QueryParam("to"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid to date, expected YYYY-MM-DD"})
	}

	cur := s.Board.Current()
	projects := filter.Apply(cur.Projects, vs.viewer(), criteria)
	if !from.IsZero() || !to.IsZero() {
		if !to.IsZero() {
			// inclusive end day
			to = to.AddDate(0, 0, 1)
		}
		projects = filter.Dated(projects, from, to)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"data":       projects,
		"summary":    filter.Summarize(projects),
		"source":     cur.Source,
		"updated_at": cur.UpdatedAt,
	})
}

func parseDay(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	return time.ParseInLocation("2006-01-02", raw, ingest.KST)
}

func splitCSV(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// visibleProject returns the project only when the caller may see it; hidden projects stay reachable.
func (s *Server) visibleProject(c echo.Context) (models.Project, error) {
	vs, err := s.loadViewer(c)
	if err != nil {
		return models.Project{}, err
	}
	p, err := s.Board.Project(c.Param("id"))
	if err != nil || !filter.Visible(p, vs.viewer()) {
		return models.Project{}, echo.NewHTTPError(http.StatusNotFound, "Project not found")
	}
	return p, nil
}

func (s *Server) handleGetProject(c echo.Context) error {
	p, err := s.visibleProject(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (s *Server) handleShareProject(c echo.Context) error {
	p, err := s.visibleProject(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"id": p.ID, "text": board.ShareText(p, time.Now())})
}

func (s *Server) handleHideProject(c echo.Context) error {
	return s.updatePreferences(c, func(p *prefs.Preferences) { p.Hide(c.Param("id")) })
}

func (s *Server) handleUnhideProject(c echo.Context) error {
	return s.updatePreferences(c, func(p *prefs.Preferences) { p.Unhide(c.Param("id")) })
}

type preferencesRequest struct {
	Aliases    *[]string `json:"aliases"`
	Categories *[]string `json:"categories"`
	HiddenIDs  *[]string `json:"hidden_ids"`
}

func (s *Server) handleUpdatePreferences(c echo.Context) error {
	var req preferencesRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}
	return s.updatePreferences(c, func(p *prefs.Preferences) {
		if req.Aliases != nil {
			p.SetAliases(*req.Aliases)
		}
		if req.Categories != nil {
			p.SetCategories(*req.Categories)
		}
		if req.HiddenIDs != nil {
			p.HiddenIDs = []string{}
			for _, id := range *req.HiddenIDs {
				p.Hide(id)
			}
		}
	})
}

// handleImportPreferences replaces the stored preferences with a client-side document of any
// known version, typically the unversioned blob kept by older clients.
func (s *Server) handleImportPreferences(c echo.Context) error {
	userID, err := auth.GetUserIDFromContext(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}

	body, err := readBody(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}
	p, err := prefs.Migrate(body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	if err := s.Store.SavePreferences(c.Request().Context(), userID, p); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, p)
}

func (s *Server) updatePreferences(c echo.Context, apply func(p *prefs.Preferences)) error {
	vs, err := s.loadViewer(c)
	if err != nil {
		return err
	}
	apply(&vs.prefs)
	if err := s.Store.SavePreferences(c.Request().Context(), vs.user.ID, vs.prefs); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, vs.prefs)
}

func (s *Server) handleMe(c echo.Context) error {
	vs, err := s.loadViewer(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"user":        vs.user,
		"preferences": vs.prefs,
	})
}

func (s *Server) handleCategories(c echo.Context) error {
	return c.JSON(http.StatusOK, s.Board.Categories())
}

func (s *Server) Start(port string) error {
	return s.Echo.Start(":" + port)
}

// adminMiddleware accepts the admin secret (X-Admin-Secret header or bearer) or a
// bearer token issued to an admin account.
func (s *Server) adminMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		secret, err := adminSecret()
		if err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Server admin configuration error"})
		}

		authHeader := c.Request().Header.Get("Authorization")
		adminHeader := c.Request().Header.Get("X-Admin-Secret")

		if adminHeader == secret {
			return next(c)
		}
		if token, ok := auth.BearerToken(authHeader); ok {
			if token == secret {
				return next(c)
			}
			if claims, err := auth.ParseToken(token); err == nil && claims.Role == auth.RoleAdmin {
				c.Set(string(auth.UserIDKey), claims.UserID)
				return next(c)
			}
		}

		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized admin access"})
	}
}

func adminSecret() (string, error) {
	adminSecretOnce.Do(func() {
		secret := strings.TrimSpace(os.Getenv("ADMIN_SECRET"))
		if secret != "" {
			adminSecretRuntime = secret
			return
		}

		buf := make([]byte, 48)
		if _, err := rand.Read(buf); err != nil {
			adminSecretErr = fmt.Errorf("failed to generate ADMIN_SECRET fallback: %w", err)
			return
		}

		adminSecretRuntime = base64.RawURLEncoding.EncodeToString(buf)
		log.Print("ADMIN_SECRET is not set; using ephemeral in-memory fallback secret")
	})

	if adminSecretErr != nil {
		return "", adminSecretErr
	}
	if adminSecretRuntime == "" {
		return "", fmt.Errorf("admin secret unavailable")
	}

	return adminSecretRuntime, nil
}
