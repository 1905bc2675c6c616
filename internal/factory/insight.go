package factory

import (
	"github.com/rs/zerolog"

	"github.com/attendly/attendly/server/internal/config"
	"github.com/attendly/attendly/server/internal/insight"
	"github.com/attendly/attendly/server/internal/insight/gemini"
	"github.com/attendly/attendly/server/internal/insight/heuristic"
)

// NewInsightProvider creates the classification/summary provider from config.
// Unknown values fall back to the keyword provider so the service still
// starts.
func NewInsightProvider(cfg *config.Config, log zerolog.Logger) insight.Provider {
	switch cfg.InsightProvider {
	case "gemini":
		return gemini.New(cfg.GeminiBaseURL, cfg.GeminiAPIKey, cfg.GeminiModel)
	case "", "heuristic":
		return heuristic.New()
	default:
		log.Warn().Str("provider", cfg.InsightProvider).Msg("unknown insight provider; using keyword rules")
		return heuristic.New()
	}
}
