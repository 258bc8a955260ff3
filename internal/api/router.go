package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"price-digest-bot/internal/digest"
	"price-digest-bot/internal/push/telegram"
	"price-digest-bot/internal/store"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
)

type TestPushRequest struct {
	Text string `json:"text"`
}

func RegisterRoutes(h *server.Hertz, svc *digest.Service, tg *telegram.Client, st *store.Store) {
	h.GET("/healthz", func(_ context.Context, c *app.RequestContext) {
		c.JSON(200, map[string]bool{"ok": true})
	})

	// Synchronous trigger: runs the whole digest before answering.
	h.POST("/api/v1/digest/run", func(ctx context.Context, c *app.RequestContext) {
		if svc == nil {
			c.String(http.StatusInternalServerError, "digest service not configured")
			return
		}
		defer func() {
			if r := recover(); r != nil {
				log.Printf("digest run panic: %v", r)
				c.String(http.StatusInternalServerError, "An error occurred: %v", r)
			}
		}()

		sum := svc.Run(ctx, "http")
		c.String(http.StatusOK, "Messages sent to Telegram for %d symbols.", sum.Attempted)
	})

	h.GET("/api/v1/runs", func(_ context.Context, c *app.RequestContext) {
		if st == nil {
			c.JSON(http.StatusInternalServerError, map[string]any{
				"ok":    false,
				"error": "store not configured",
			})
			return
		}

		limit, err := parseIntParam(string(c.Query("limit")), 50)
		if err != nil {
			c.JSON(http.StatusBadRequest, map[string]any{"ok": false, "error": "invalid limit"})
			return
		}
		offset, err := parseIntParam(string(c.Query("offset")), 0)
		if err != nil {
			c.JSON(http.StatusBadRequest, map[string]any{"ok": false, "error": "invalid offset"})
			return
		}

		runs, err := st.QueryRuns(limit, offset)
		if err != nil {
			c.JSON(http.StatusInternalServerError, map[string]any{"ok": false, "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, map[string]any{
			"ok":   true,
			"runs": runs,
		})
	})

	h.GET("/api/v1/runs/:id/symbols", func(_ context.Context, c *app.RequestContext) {
		if st == nil {
			c.JSON(http.StatusInternalServerError, map[string]any{
				"ok":    false,
				"error": "store not configured",
			})
			return
		}

		runID := c.Param("id")
		symbols, err := st.QuerySymbolsByRun(runID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, map[string]any{"ok": false, "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, map[string]any{
			"ok":      true,
			"run_id":  runID,
			"symbols": symbols,
		})
	})

	h.POST("/api/v1/test/push", func(ctx context.Context, c *app.RequestContext) {
		if tg == nil {
			c.JSON(http.StatusInternalServerError, map[string]any{
				"ok":    false,
				"error": "telegram client not configured",
			})
			return
		}

		var req TestPushRequest
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, map[string]any{
				"ok":    false,
				"error": "invalid json body",
			})
			return
		}

		if err := tg.SendText(ctx, req.Text); err != nil {
			log.Printf("telegram send error: %v", err)
			c.JSON(http.StatusBadGateway, map[string]any{
				"ok":    false,
				"error": err.Error(),
			})
			return
		}
		c.JSON(http.StatusOK, map[string]any{"ok": true})
	})
}

func parseIntParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid value: %q", raw)
	}
	return v, nil
}
