package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/BACON-AI-CLOUD/bacon-ai-boards/domain"
	"github.com/BACON-AI-CLOUD/bacon-ai-boards/engine"
	"github.com/BACON-AI-CLOUD/bacon-ai-boards/focalboard"
	"github.com/BACON-AI-CLOUD/bacon-ai-boards/templates"
)

const requestBodyMaxSize = 1 << 20

// Deps bundles the engine components handlers dispatch to.
type Deps struct {
	Catalog      Catalog
	Instantiator Instantiator
	Syncer       Syncer
	Tracker      Tracker
	Exporter     Exporter
	Pinger       Pinger
}

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, deps Deps, auth Authenticator, deduper Deduper, logger *log.Logger) {
	e.GET("/api/templates", getTemplates(deps.Catalog, auth))
	e.GET("/api/templates/:templateID", getTemplate(deps.Catalog, auth))
	e.POST("/api/templates/instantiate", postInstantiate(deps.Instantiator, auth, deduper, logger))
	e.POST("/api/boards/:boardID/sync", postSync(deps.Syncer, auth))
	e.GET("/api/boards/:boardID/tracking", getTracking(deps.Tracker, auth))
	e.PUT("/api/boards/:boardID/tracking", putTracking(deps.Tracker, auth))
	e.POST("/api/boards/:boardID/export", postExport(deps.Exporter, auth))
	e.GET("/healthz", healthz(deps.Pinger))
}

type templatesResponse struct {
	Templates []templates.Summary `json:"templates"`
	Warnings  []templates.Warning `json:"warnings,omitempty"`
}

type instantiateRequest struct {
	TemplateID     string            `json:"templateId"`
	ProjectName    string            `json:"projectName"`
	TeamID         string            `json:"teamId"`
	Variables      map[string]string `json:"variables"`
	IdempotencyKey string            `json:"idempotencyKey"`
}

type instantiateResponse struct {
	engine.InstantiateResult
	IdempotencyKey string `json:"idempotencyKey"`
}

type syncRequest struct {
	TemplateID string               `json:"templateId"`
	Direction  domain.SyncDirection `json:"direction"`
	DryRun     bool                 `json:"dryRun"`
}

type trackingRequest struct {
	TemplateID string               `json:"templateId"`
	Version    string               `json:"version"`
	Status     domain.UpgradeStatus `json:"status"`
}

func healthz(pinger Pinger) echo.HandlerFunc {
	return func(c echo.Context) error {
		if pinger != nil {
			if err := pinger.Ping(c.Request().Context()); err != nil {
				return c.String(http.StatusServiceUnavailable, err.Error())
			}
		}
		return c.NoContent(http.StatusOK)
	}
}

func decodeBody(c echo.Context, out any) error {
	lr := io.LimitReader(c.Request().Body, requestBodyMaxSize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}

// writeEngineError maps engine failures onto HTTP statuses: unknown
// templates are 404, invalid documents 422, concurrent edits 409, and a
// broken board backend 502.
func writeEngineError(c echo.Context, err error) error {
	var validationErr *domain.ValidationError
	var apiErr *focalboard.APIError
	var transportErr *focalboard.TransportError
	switch {
	case errors.Is(err, templates.ErrNotFound), focalboard.IsNotFound(err):
		return c.String(http.StatusNotFound, err.Error())
	case errors.Is(err, templates.ErrModified):
		return c.String(http.StatusConflict, err.Error())
	case errors.As(err, &validationErr):
		return c.JSON(http.StatusUnprocessableEntity, map[string]any{
			"templateId": validationErr.TemplateID,
			"problems":   validationErr.Problems,
		})
	case errors.As(err, &apiErr), errors.As(err, &transportErr):
		return c.String(http.StatusBadGateway, err.Error())
	default:
		c.Logger().Error(err)
		return c.String(http.StatusInternalServerError, err.Error())
	}
}

func getTemplates(catalog Catalog, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, err := auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization")); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		summaries, warnings := catalog.Discover(c.QueryParam("category"))
		if summaries == nil {
			summaries = []templates.Summary{}
		}
		return c.JSON(http.StatusOK, templatesResponse{Templates: summaries, Warnings: warnings})
	}
}

func getTemplate(catalog Catalog, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, err := auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization")); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		tmpl, err := catalog.Load(c.Param("templateID"))
		if err != nil {
			return writeEngineError(c, err)
		}
		return c.JSON(http.StatusOK, tmpl)
	}
}

func postInstantiate(ins Instantiator, auth Authenticator, deduper Deduper, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx := c.Request().Context()
		metrics, spanCtx := newInstantiateRequestMetrics(ctx, logger)
		if spanCtx != nil {
			c.SetRequest(c.Request().WithContext(spanCtx))
			ctx = spanCtx
		}
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		authStart := time.Now()
		userID, authErr := auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization"))
		metrics.ObserveAuth(time.Since(authStart))
		if authErr != nil {
			metrics.SetErrorStage("auth")
			err = c.String(http.StatusUnauthorized, authErr.Error())
			return err
		}

		var req instantiateRequest
		if decodeErr := decodeBody(c, &req); decodeErr != nil {
			metrics.SetErrorStage("decode")
			err = c.String(http.StatusBadRequest, "invalid body")
			return err
		}
		if req.TemplateID == "" || req.ProjectName == "" {
			metrics.SetErrorStage("validate")
			err = c.String(http.StatusBadRequest, "templateId and projectName are required")
			return err
		}
		metrics.SetTemplateID(req.TemplateID)

		if req.IdempotencyKey == "" {
			req.IdempotencyKey = uuid.NewString()
		}
		added, dedupeErr := deduper.Add(ctx, userID, req.IdempotencyKey)
		if dedupeErr != nil {
			metrics.SetErrorStage("dedupe")
			c.Logger().Error(dedupeErr)
			err = c.String(http.StatusInternalServerError, "idempotency check failed")
			return err
		}
		if !added {
			metrics.SetErrorStage("duplicate")
			err = c.String(http.StatusConflict, "duplicate request")
			return err
		}

		engineStart := time.Now()
		result, insErr := ins.Instantiate(ctx, req.TemplateID, req.ProjectName, req.TeamID, req.Variables)
		metrics.ObserveEngine(time.Since(engineStart))
		if insErr != nil {
			metrics.SetErrorStage("engine")
			// The board was not created; let the caller retry with the
			// same key.
			if rmErr := deduper.Remove(ctx, userID, req.IdempotencyKey); rmErr != nil {
				c.Logger().Errorf("dedupe rollback failed: %v", rmErr)
			}
			err = writeEngineError(c, insErr)
			return err
		}
		metrics.SetCardsCreated(result.CreatedCount)
		metrics.SetPartialErrors(len(result.Errors))

		encodeStart := time.Now()
		err = c.JSON(http.StatusCreated, instantiateResponse{
			InstantiateResult: result,
			IdempotencyKey:    req.IdempotencyKey,
		})
		metrics.ObserveEncode(time.Since(encodeStart))
		if err != nil {
			metrics.SetErrorStage("encode_response")
		}
		return err
	}
}

func postSync(syncer Syncer, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		if _, err := auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization")); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		var req syncRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if req.TemplateID == "" {
			return c.String(http.StatusBadRequest, "templateId is required")
		}
		if req.Direction == "" {
			req.Direction = domain.TemplateToBoard
		}
		if !req.Direction.Valid() {
			return c.String(http.StatusBadRequest, "invalid direction")
		}
		report, err := syncer.Reconcile(ctx, c.Param("boardID"), req.TemplateID, req.Direction, req.DryRun)
		if err != nil {
			return writeEngineError(c, err)
		}
		return c.JSON(http.StatusOK, report)
	}
}

func getTracking(tracker Tracker, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		if _, err := auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization")); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		tracking, err := tracker.Get(ctx, c.Param("boardID"))
		if err != nil {
			return writeEngineError(c, err)
		}
		return c.JSON(http.StatusOK, tracking)
	}
}

func putTracking(tracker Tracker, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		if _, err := auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization")); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		var req trackingRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if req.TemplateID == "" || req.Version == "" {
			return c.String(http.StatusBadRequest, "templateId and version are required")
		}
		if req.Status != "" && !req.Status.Valid() {
			return c.String(http.StatusBadRequest, "invalid status")
		}
		if err := tracker.Set(ctx, c.Param("boardID"), req.TemplateID, req.Version, req.Status); err != nil {
			return writeEngineError(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func postExport(exporter Exporter, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		if _, err := auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization")); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		var opts engine.ExportOptions
		if err := decodeBody(c, &opts); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if opts.TemplateID == "" {
			return c.String(http.StatusBadRequest, "templateId is required")
		}
		result, err := exporter.Export(ctx, c.Param("boardID"), opts)
		if err != nil {
			return writeEngineError(c, err)
		}
		return c.JSON(http.StatusCreated, result)
	}
}
