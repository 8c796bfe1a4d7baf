package api

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"laterai/internal/capture"
	"laterai/internal/classifier"
	"laterai/internal/domain"
	"laterai/internal/session"
)

const sessionKey = "session"

type fetchMetadataRequest struct {
	URL string `json:"url"`
}

func (s *Server) fetchMetadata(c echo.Context) error {
	var req fetchMetadataRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.URL) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "URL is required")
	}
	if !capture.IsHTTPURL(req.URL) {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid URL")
	}
	// Failures are reported in the body with a 200 so callers always get a usable fallback.
	return c.JSON(http.StatusOK, s.deps.Fetcher.Fetch(c.Request().Context(), strings.TrimSpace(req.URL)))
}

func (s *Server) classifyContent(c echo.Context) error {
	var in classifier.Input
	if err := c.Bind(&in); err != nil {
		return c.JSON(http.StatusOK, classifier.Fallback(classifier.Input{}))
	}
	return c.JSON(http.StatusOK, s.deps.Classifier.Classify(c.Request().Context(), in))
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (s *Server) signup(c echo.Context) error {
	var req credentials
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	account, err := s.deps.Auth.SignUp(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, map[string]string{"id": account.ID, "email": account.Email})
}

func (s *Server) login(c echo.Context) error {
	var req credentials
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ctx := c.Request().Context()
	sess, err := s.deps.Auth.SignIn(ctx, req.Email, req.Password)
	if err != nil {
		return err
	}
	if s.deps.Announcer != nil {
		if err := s.deps.Announcer.SessionUpdated(ctx, sess); err != nil {
			s.log.WithError(err).Warn("Failed to announce login")
		}
	}
	return c.JSON(http.StatusOK, sess)
}

func (s *Server) refresh(c echo.Context) error {
	var req refreshRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	sess, err := s.deps.Auth.Refresh(c.Request().Context(), req.RefreshToken)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sess)
}

func (s *Server) logout(c echo.Context) error {
	var req refreshRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ctx := c.Request().Context()
	if err := s.deps.Auth.SignOut(ctx, req.RefreshToken); err != nil {
		return err
	}
	if s.deps.Announcer != nil {
		if err := s.deps.Announcer.LoggedOut(ctx); err != nil {
			s.log.WithError(err).Warn("Failed to announce logout")
		}
	}
	return c.NoContent(http.StatusNoContent)
}

// requireSession verifies the bearer token and stores its session on the context.
func (s *Server) requireSession(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		h := c.Request().Header.Get(echo.HeaderAuthorization)
		token, ok := strings.CutPrefix(h, "Bearer ")
		if !ok || token == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "missing token")
		}
		sess, err := s.deps.Auth.Verify(token)
		if err != nil {
			return err
		}
		c.Set(sessionKey, sess)
		return next(c)
	}
}

func sessionOf(c echo.Context) domain.Session {
	sess, _ := c.Get(sessionKey).(domain.Session)
	return sess
}

func (s *Server) listItems(c echo.Context) error {
	store, err := s.deps.Items.For(c.Request().Context(), sessionOf(c).UserID)
	if err != nil {
		return err
	}
	if c.QueryParam("refresh") == "true" {
		if err := store.Refresh(c.Request().Context()); err != nil {
			return err
		}
	}

	list := store.Items()
	if c.QueryParam("starred") == "true" {
		starred := list[:0]
		for _, item := range list {
			if item.IsStarred {
				starred = append(starred, item)
			}
		}
		list = starred
	}
	return c.JSON(http.StatusOK, list)
}

func (s *Server) createItem(c echo.Context) error {
	var ev capture.RawEvent
	if err := c.Bind(&ev); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if ev.Surface == "" {
		ev.Surface = capture.SurfaceForm
	}

	sess := sessionOf(c)
	ctx := c.Request().Context()
	// Load the cache first so the new item's events reach it.
	if _, err := s.deps.Items.For(ctx, sess.UserID); err != nil {
		return err
	}
	item, err := s.deps.Capturer.CaptureWith(ctx, session.Verified(sess), capture.Normalize(ev))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, item)
}

func (s *Server) toggleStar(c echo.Context) error {
	ctx := c.Request().Context()
	store, err := s.deps.Items.For(ctx, sessionOf(c).UserID)
	if err != nil {
		return err
	}
	starred, err := store.ToggleStar(ctx, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"id": c.Param("id"), "is_starred": starred})
}

func (s *Server) deleteItem(c echo.Context) error {
	ctx := c.Request().Context()
	store, err := s.deps.Items.For(ctx, sessionOf(c).UserID)
	if err != nil {
		return err
	}
	if err := store.Remove(ctx, c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) reclassify(c echo.Context) error {
	item, err := s.deps.Capturer.Reclassify(c.Request().Context(), session.Verified(sessionOf(c)), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, item)
}
