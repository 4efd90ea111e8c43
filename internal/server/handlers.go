package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/mzeeshan-dev/position-indexer/internal/ai"
	"github.com/mzeeshan-dev/position-indexer/internal/classify"
	"github.com/mzeeshan-dev/position-indexer/internal/flags"
	"github.com/mzeeshan-dev/position-indexer/internal/storage"
)

// Handlers contains all dependencies for API endpoint handlers
type Handlers struct {
	Store        storage.AggregateStore // ClickHouse-backed aggregate store
	Cache        storage.ActivityCache  // Redis-backed recent-activity cache
	Flags        *flags.Store           // Redis-backed feature flags store
	AI           *ai.Agent              // AI agent for natural language queries
	AIBaseConfig ai.AgentConfig         // Base configuration for AI agents
	DevMode      bool                   // Enable detailed error responses in development
	Logger       *logrus.Logger         // Structured logger
}

// err returns a standardized JSON error response
// In dev mode, includes additional error details for debugging
func (h *Handlers) err(c echo.Context, code int, msg string, details any) error {
	resp := ErrorResponse{Error: msg, Code: code}
	if h.DevMode && details != nil {
		resp.Details = details
	}
	return c.JSON(code, resp)
}

// withTimeout creates a context with timeout, defaulting to 10 seconds if duration <= 0
func (h *Handlers) withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = 10 * time.Second
	}
	return context.WithTimeout(ctx, d)
}

// Health returns a simple health check endpoint
func (h *Handlers) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{OK: true})
}

// Status reports the pipeline's durable cursor height
func (h *Handlers) Status(c echo.Context) error {
	ctx, cancel := h.withTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	height, ok, err := h.Store.LoadCursor(ctx)
	if err != nil {
		return h.err(c, http.StatusInternalServerError, "failed to load cursor", err.Error())
	}
	return c.JSON(http.StatusOK, StatusResponse{CursorHeight: height, HasCursor: ok})
}

// Wallet returns the aggregate counters for a wallet address
func (h *Handlers) Wallet(c echo.Context) error {
	address := strings.TrimSpace(c.Param("address"))
	if address == "" {
		return h.err(c, http.StatusBadRequest, "invalid address", nil)
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	w, err := h.Store.GetWallet(ctx, classify.NormalizeAddress(address))
	if err != nil {
		return h.err(c, http.StatusInternalServerError, "failed to get wallet", err.Error())
	}
	if w == nil {
		return h.err(c, http.StatusNotFound, "wallet not found", nil)
	}
	return c.JSON(http.StatusOK, w)
}

// Position returns a position by its token id
func (h *Handlers) Position(c echo.Context) error {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		return h.err(c, http.StatusBadRequest, "invalid token id", nil)
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	p, err := h.Store.GetPosition(ctx, id)
	if err != nil {
		return h.err(c, http.StatusInternalServerError, "failed to get position", err.Error())
	}
	if p == nil {
		return h.err(c, http.StatusNotFound, "position not found", nil)
	}
	return c.JSON(http.StatusOK, p)
}

// Timeline returns a wallet's recent activity entries, newest first
// Accepts limit query parameter (default: 50, range: 1-200)
func (h *Handlers) Timeline(c echo.Context) error {
	address := strings.TrimSpace(c.Param("address"))
	if address == "" {
		return h.err(c, http.StatusBadRequest, "invalid address", nil)
	}

	limit, err := parseLimit(c.QueryParam("limit"), 50)
	if err != nil {
		return h.err(c, http.StatusBadRequest, "invalid limit", map[string]any{"limit": "min 1 max 200"})
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	items, err := h.Store.GetTimeline(ctx, classify.NormalizeAddress(address), limit)
	if err != nil {
		return h.err(c, http.StatusInternalServerError, "failed to get timeline", err.Error())
	}
	return c.JSON(http.StatusOK, map[string]any{"items": items})
}

// RecentActivity returns the most recent classified events across all wallets
func (h *Handlers) RecentActivity(c echo.Context) error {
	limit, err := parseLimit(c.QueryParam("limit"), 100)
	if err != nil {
		return h.err(c, http.StatusBadRequest, "invalid limit", map[string]any{"limit": "min 1 max 200"})
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	items, err := h.Cache.GetRecentEvents(ctx, int64(limit))
	if err != nil {
		return h.err(c, http.StatusInternalServerError, "failed to get recent activity", err.Error())
	}
	return c.JSON(http.StatusOK, map[string]any{"items": items})
}

// AIAsk answers a natural language question over the aggregate tables
func (h *Handlers) AIAsk(c echo.Context) error {
	var req AskRequest
	dec := json.NewDecoder(c.Request().Body)
	if err := dec.Decode(&req); err != nil {
		return h.err(c, http.StatusBadRequest, "invalid JSON", nil)
	}
	if strings.TrimSpace(req.Question) == "" {
		return h.err(c, http.StatusBadRequest, "question is required", nil)
	}

	agent := h.AI
	if agent == nil {
		return h.err(c, http.StatusServiceUnavailable, "ai agent not configured", nil)
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 60*time.Second)
	defer cancel()

	// Per-request model override spins up a scoped agent.
	if req.Model != "" && req.Model != h.AIBaseConfig.Model {
		cfg := h.AIBaseConfig
		cfg.Model = req.Model
		scoped, err := ai.NewAgent(ctx, cfg)
		if err != nil {
			return h.err(c, http.StatusBadGateway, "failed to initialize model", err.Error())
		}
		defer scoped.Close()
		agent = scoped
	}

	result, err := agent.Ask(ctx, req.Question)
	if err != nil {
		h.Logger.WithError(err).Warn("ai ask failed")
		return h.err(c, http.StatusBadGateway, "failed to answer question", err.Error())
	}
	return c.JSON(http.StatusOK, AskResponse{SQL: result.SQL, Answer: result.Answer})
}

// FlagsList returns all feature flags
func (h *Handlers) FlagsList(c echo.Context) error {
	ctx, cancel := h.withTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	items, err := h.Flags.List(ctx)
	if err != nil {
		return h.err(c, http.StatusInternalServerError, "failed to list flags", err.Error())
	}
	return c.JSON(http.StatusOK, map[string]any{"items": items})
}

// FlagsUpsert creates or replaces a feature flag
func (h *Handlers) FlagsUpsert(c echo.Context) error {
	var req FlagUpsertRequest
	dec := json.NewDecoder(c.Request().Body)
	if err := dec.Decode(&req); err != nil {
		return h.err(c, http.StatusBadRequest, "invalid JSON", nil)
	}
	if err := flags.ValidateKey(req.Key); err != nil {
		return h.err(c, http.StatusBadRequest, "invalid key: "+err.Error(), nil)
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	flag, err := h.Flags.Upsert(ctx, req.Key, req.Value)
	if err != nil {
		return h.err(c, http.StatusInternalServerError, "failed to upsert flag", err.Error())
	}
	return c.JSON(http.StatusOK, flag)
}

// FlagsGet returns a single feature flag by key
func (h *Handlers) FlagsGet(c echo.Context) error {
	key := c.Param("key")

	ctx, cancel := h.withTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	flag, err := h.Flags.Get(ctx, key)
	if err != nil {
		if errors.Is(err, flags.ErrNotFound) {
			return h.err(c, http.StatusNotFound, "flag not found", nil)
		}
		return h.err(c, http.StatusBadRequest, err.Error(), nil)
	}
	return c.JSON(http.StatusOK, flag)
}

// FlagsUpdate updates an existing flag's value
func (h *Handlers) FlagsUpdate(c echo.Context) error {
	key := c.Param("key")

	var req FlagUpdateRequest
	dec := json.NewDecoder(c.Request().Body)
	if err := dec.Decode(&req); err != nil {
		return h.err(c, http.StatusBadRequest, "invalid JSON", nil)
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if _, err := h.Flags.Get(ctx, key); err != nil {
		if errors.Is(err, flags.ErrNotFound) {
			return h.err(c, http.StatusNotFound, "flag not found", nil)
		}
		return h.err(c, http.StatusBadRequest, err.Error(), nil)
	}

	flag, err := h.Flags.Upsert(ctx, key, req.Value)
	if err != nil {
		return h.err(c, http.StatusInternalServerError, "failed to update flag", err.Error())
	}
	return c.JSON(http.StatusOK, flag)
}

// FlagsDelete removes a feature flag
func (h *Handlers) FlagsDelete(c echo.Context) error {
	key := c.Param("key")

	ctx, cancel := h.withTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Flags.Delete(ctx, key); err != nil {
		return h.err(c, http.StatusBadRequest, err.Error(), nil)
	}
	return c.NoContent(http.StatusNoContent)
}

func parseLimit(s string, def int) (int, error) {
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > 200 {
		return 0, errors.New("invalid limit")
	}
	return n, nil
}
