package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/papergrade/papergrade-api/internal/middleware"
	"github.com/papergrade/papergrade-api/internal/progress"
	"github.com/papergrade/papergrade-api/internal/utils"
)

// ProgressHandler streams pipeline stage events for a batch over SSE.
type ProgressHandler struct {
	broker    *progress.Broker
	keepAlive time.Duration
	logger    zerolog.Logger
}

// NewProgressHandler constructs the handler.
func NewProgressHandler(broker *progress.Broker, keepAlive time.Duration, logger zerolog.Logger) *ProgressHandler {
	if keepAlive <= 0 {
		keepAlive = 30 * time.Second
	}

	return &ProgressHandler{
		broker:    broker,
		keepAlive: keepAlive,
		logger:    logger.With().Str("component", "progress_handler").Logger(),
	}
}

// Register wires the progress routes into the provided router group.
func (h *ProgressHandler) Register(router fiber.Router) {
	router.Get("/:batch", h.Stream)
}

// Stream subscribes to the batch's stage events and relays them until the
// client disconnects.
func (h *ProgressHandler) Stream(c *fiber.Ctx) error {
	batchID := c.Params("batch")
	if batchID == "" {
		return utils.SendError(c, fiber.StatusBadRequest, "batch id required")
	}

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = middleware.ContextWithCorrelation(ctx, middleware.GetCorrelationID(c))
	ctx, cancel := context.WithCancel(ctx)

	stream, cleanup := h.broker.Subscribe(batchID)

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer func() {
			cleanup()
			cancel()
		}()

		ticker := time.NewTicker(h.keepAlive / 2)
		defer ticker.Stop()

		for {
			select {
			case event, ok := <-stream:
				if !ok {
					return
				}
				if err := writeStageEvent(w, event); err != nil {
					h.logger.Debug().Err(err).Msg("failed to write stage event")
					return
				}
			case <-ticker.C:
				if err := writeKeepAlive(w); err != nil {
					h.logger.Debug().Err(err).Msg("failed to write progress keepalive")
					return
				}
			case <-ctx.Done():
				return
			}
		}
	})

	return nil
}

func writeStageEvent(w *bufio.Writer, event progress.StageEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintf(w, "event: stage\n"); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
		return err
	}
	return w.Flush()
}

func writeKeepAlive(w *bufio.Writer) error {
	if _, err := fmt.Fprintf(w, ": keep-alive %s\n\n", time.Now().UTC().Format(time.RFC3339)); err != nil {
		return err
	}
	return w.Flush()
}
