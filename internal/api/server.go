// Package api serves the metadata and classification endpoints, auth and
// the in-app item surface over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"

	"laterai/internal/auth"
	"laterai/internal/classifier"
	"laterai/internal/domain"
	"laterai/internal/items"
	"laterai/internal/metrics"
	"laterai/internal/pipeline"
	"laterai/internal/scraper"
	"laterai/internal/session"
	"laterai/internal/storage"
)

// Authenticator is the account service behind /api/auth.
type Authenticator interface {
	SignUp(ctx context.Context, email, password string) (domain.Account, error)
	SignIn(ctx context.Context, email, password string) (domain.Session, error)
	Refresh(ctx context.Context, refreshToken string) (domain.Session, error)
	SignOut(ctx context.Context, refreshToken string) error
	Verify(accessToken string) (domain.Session, error)
}

// Capturer runs captures on behalf of a request's session.
type Capturer interface {
	CaptureWith(ctx context.Context, src session.Source, req domain.CaptureRequest) (domain.SavedItem, error)
	Reclassify(ctx context.Context, src session.Source, id string) (domain.SavedItem, error)
}

// Announcer tells other contexts about logins and logouts.
type Announcer interface {
	SessionUpdated(ctx context.Context, s domain.Session) error
	LoggedOut(ctx context.Context) error
}

type Deps struct {
	Auth       Authenticator
	Fetcher    scraper.Fetcher
	Classifier classifier.Classifier
	Capturer   Capturer
	Items      *items.Registry
	Announcer  Announcer
	Metrics    *metrics.Metrics
	Origins    []string
	Logger     logrus.FieldLogger
}

type Server struct {
	e    *echo.Echo
	deps Deps
	log  logrus.FieldLogger
}

func NewServer(deps Deps) *Server {
	s := &Server{
		e:    echo.New(),
		deps: deps,
		log:  deps.Logger.WithField("component", "api"),
	}
	s.e.HideBanner = true
	s.e.HidePort = true
	s.e.HTTPErrorHandler = s.handleError

	s.e.Use(middleware.Recover())
	origins := deps.Origins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	s.e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     origins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{echo.HeaderContentType, echo.HeaderAuthorization},
		AllowCredentials: true,
	}))

	s.routes()
	return s
}

func (s *Server) routes() {
	s.e.GET("/", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok", "message": "Later AI Metadata Server"})
	})
	s.e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	s.e.GET("/metrics", echo.WrapHandler(s.deps.Metrics.Handler()))

	api := s.e.Group("/api")
	api.POST("/fetch-metadata", s.fetchMetadata)
	api.POST("/classify-content", s.classifyContent)

	authGroup := api.Group("/auth")
	authGroup.POST("/signup", s.signup)
	authGroup.POST("/login", s.login)
	authGroup.POST("/refresh", s.refresh)
	authGroup.POST("/logout", s.logout)

	itemsGroup := api.Group("/items", s.requireSession)
	itemsGroup.GET("", s.listItems)
	itemsGroup.POST("", s.createItem)
	itemsGroup.POST("/:id/star", s.toggleStar)
	itemsGroup.DELETE("/:id", s.deleteItem)
	itemsGroup.POST("/:id/classify", s.reclassify)
}

// Handler exposes the router, mostly for tests.
func (s *Server) Handler() http.Handler { return s.e }

// Start listens on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	s.log.WithField("addr", addr).Info("HTTP server listening")
	if err := s.e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.e.Shutdown(ctx)
}

// statusOf maps the error taxonomy onto HTTP status codes.
func statusOf(err error) int {
	var he *echo.HTTPError
	switch {
	case errors.As(err, &he):
		return he.Code
	case errors.Is(err, domain.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidCapture), errors.Is(err, auth.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, pipeline.ErrClassificationUnavailable):
		return http.StatusServiceUnavailable
	case domain.IsPersistence(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleError(err error, c echo.Context) {
	code := statusOf(err)
	msg := err.Error()
	var he *echo.HTTPError
	if errors.As(err, &he) && he.Message != nil {
		msg = fmt.Sprint(he.Message)
	}

	req := c.Request()
	log := s.log.WithFields(logrus.Fields{"status": code, "method": req.Method, "path": req.URL.Path})
	if code >= http.StatusInternalServerError {
		log.WithError(err).Error("Request failed")
	} else {
		log.WithError(err).Debug("Request rejected")
	}

	if !c.Response().Committed {
		_ = c.JSON(code, map[string]string{"error": msg})
	}
}
