// Package genai provides the text-generation capability for spiral.
// The engine consumes it through the Generator interface: given a
// structured instruction, return JSON matching the expected shape, or
// fail. Callers are required to treat every failure identically and
// fall back to local content.
package genai

import (
	"context"
	"errors"
	"strings"

	json "github.com/goccy/go-json"
)

// Request is a structured generation instruction.
type Request struct {
	System string // role and output-contract instruction
	User   string // the content to work on
}

// Generator produces JSON for a structured instruction. Implementations
// must return an error for timeouts, transport failures, and unparsable
// output alike - the distinction never matters to callers.
type Generator interface {
	GenerateJSON(ctx context.Context, req Request) ([]byte, error)
}

// ErrNoGenerator is returned by NopGenerator; engines treat it like any
// other generation failure and substitute local content.
var ErrNoGenerator = errors.New("genai: no generator configured")

// NopGenerator always fails. Used when no API key is configured so the
// engine runs entirely on deterministic fallbacks.
type NopGenerator struct{}

// GenerateJSON implements Generator.
func (NopGenerator) GenerateJSON(ctx context.Context, req Request) ([]byte, error) {
	return nil, ErrNoGenerator
}

// ExtractJSON pulls the first JSON object out of a model response,
// tolerating markdown fences and surrounding prose. Returns an error if
// no syntactically valid object is found.
func ExtractJSON(text string) ([]byte, error) {
	trimmed := strings.TrimSpace(text)

	// Strip a markdown fence if the whole response is fenced.
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```")
		if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
			trimmed = trimmed[:idx]
		}
		trimmed = strings.TrimSpace(trimmed)
	}

	start := strings.IndexByte(trimmed, '{')
	end := strings.LastIndexByte(trimmed, '}')
	if start < 0 || end <= start {
		return nil, errors.New("genai: no JSON object in response")
	}
	candidate := []byte(trimmed[start : end+1])

	if !json.Valid(candidate) {
		return nil, errors.New("genai: response JSON is invalid")
	}
	return candidate, nil
}
