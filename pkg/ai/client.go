package ai

import (
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

var (
	stageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "papergrade",
		Subsystem: "ai",
		Name:      "stage_duration_seconds",
		Help:      "Duration of AI stage requests",
	}, []string{"stage", "model"})

	stageFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "papergrade",
		Subsystem: "ai",
		Name:      "stage_failures_total",
		Help:      "Number of AI stage failures",
	}, []string{"stage", "model"})
)

// Config defines configuration options for the OpenAI-backed stages.
type Config struct {
	APIKey      string
	VisionModel string
	TextModel   string
	MaxTokens   int
	Temperature float32
	Logger      zerolog.Logger
}

// Client implements the transcription, grading, and feedback stages
// against the OpenAI chat completion API.
type Client struct {
	api    *openai.Client
	cfg    Config
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewClient builds a stage client using the provided configuration.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}

	if cfg.VisionModel == "" {
		cfg.VisionModel = "gpt-4o"
	}

	if cfg.TextModel == "" {
		cfg.TextModel = "gpt-4o"
	}

	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 1500
	}

	logger := cfg.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = zerolog.Nop()
	}

	config := openai.DefaultConfig(cfg.APIKey)
	client := openai.NewClientWithConfig(config)

	return &Client{
		api:    client,
		cfg:    cfg,
		tracer: otel.Tracer("github.com/papergrade/papergrade-api/pkg/ai"),
		logger: logger.With().Str("component", "ai").Logger(),
	}, nil
}

// StripCodeFences removes markdown code-fence wrappers the model sometimes
// adds around JSON responses. Applying it to unfenced content is a no-op, so
// the operation is idempotent.
func StripCodeFences(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}

	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")

	return strings.TrimSpace(trimmed)
}
