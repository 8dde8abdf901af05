package genai

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	gg "google.golang.org/genai"
)

// GeminiClient implements Generator against the Gemini API. Each call
// attempts the primary model and retries once on the fallback model;
// both attempts share the caller's deadline but are individually capped
// by AttemptTimeout.
type GeminiClient struct {
	client         *gg.Client
	primaryModel   string
	fallbackModel  string
	attemptTimeout time.Duration
}

// GeminiConfig holds client construction options.
type GeminiConfig struct {
	PrimaryModel   string
	FallbackModel  string
	AttemptTimeout time.Duration
}

// NewGeminiClient creates a Gemini-backed generator. The API key comes
// from GEMINI_API_KEY (or GOOGLE_API_KEY); an empty key is an error so
// the caller can fall back to NopGenerator explicitly.
func NewGeminiClient(ctx context.Context, cfg GeminiConfig) (*GeminiClient, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		apiKey = os.Getenv("GOOGLE_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is not set")
	}

	client, err := gg.NewClient(ctx, &gg.ClientConfig{
		APIKey:  apiKey,
		Backend: gg.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = 20 * time.Second
	}

	return &GeminiClient{
		client:         client,
		primaryModel:   cfg.PrimaryModel,
		fallbackModel:  cfg.FallbackModel,
		attemptTimeout: cfg.AttemptTimeout,
	}, nil
}

// GenerateJSON implements Generator with primary-then-fallback retry.
func (g *GeminiClient) GenerateJSON(ctx context.Context, req Request) ([]byte, error) {
	data, err := g.attempt(ctx, g.primaryModel, req)
	if err == nil {
		return data, nil
	}
	log.Warn().Err(err).Str("model", g.primaryModel).Msg("Primary model failed, trying fallback")

	if g.fallbackModel == "" || g.fallbackModel == g.primaryModel {
		return nil, err
	}
	data, ferr := g.attempt(ctx, g.fallbackModel, req)
	if ferr != nil {
		return nil, fmt.Errorf("primary: %v; fallback: %w", err, ferr)
	}
	return data, nil
}

func (g *GeminiClient) attempt(ctx context.Context, model string, req Request) ([]byte, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, g.attemptTimeout)
	defer cancel()

	temp := float32(0.7)
	cfg := &gg.GenerateContentConfig{
		SystemInstruction: gg.NewContentFromText(req.System, gg.RoleUser),
		Temperature:       &temp,
		ResponseMIMEType:  "application/json",
	}

	contents := []*gg.Content{gg.NewContentFromText(req.User, gg.RoleUser)}

	res, err := g.client.Models.GenerateContent(attemptCtx, model, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("generate content: %w", err)
	}

	text := res.Text()
	if text == "" {
		return nil, fmt.Errorf("model %s returned empty text", model)
	}
	return ExtractJSON(text)
}
