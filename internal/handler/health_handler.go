package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/papergrade/papergrade-api/internal/config"
	"github.com/papergrade/papergrade-api/internal/utils"
)

// HealthResponse reports service liveness plus the grading setup the instance
// runs with, so an operator can tell misdeployed model config apart from a
// dead process.
type HealthResponse struct {
	Status      string    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
	Service     string    `json:"service"`
	Environment string    `json:"environment"`
	VisionModel string    `json:"vision_model"`
	TextModel   string    `json:"text_model"`
	BatchSize   int       `json:"batch_workers"`
}

// HealthCheck returns the liveness handler.
func HealthCheck(cfg config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		payload := HealthResponse{
			Status:      "ok",
			Timestamp:   time.Now().UTC(),
			Service:     cfg.AppName,
			Environment: cfg.AppEnv,
			VisionModel: cfg.VisionModel,
			TextModel:   cfg.TextModel,
			BatchSize:   cfg.PipelineWorkerCount,
		}

		return utils.SendSuccess(c, "service healthy", payload)
	}
}
