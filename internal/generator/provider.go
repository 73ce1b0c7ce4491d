// Package generator produces ad copy, audience targeting, images, A/B
// variants and metrics analyses from a language model provider.
//
// Every response is requested as strict JSON and checked against the
// expected shape; anything else is ErrMalformedResponse. Without a provider
// credential every call returns ErrNotConfigured.
package generator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/keyxmakerx/adpilot/internal/config"
	"github.com/keyxmakerx/adpilot/internal/creative"
	"github.com/keyxmakerx/adpilot/internal/metrics"
	"github.com/keyxmakerx/adpilot/internal/sanitize"
)

// Provider generates ad content. All methods are safe for concurrent use.
type Provider interface {
	GenerateCopy(ctx context.Context, c Context) (*creative.Copy, error)
	GenerateAudience(ctx context.Context, c Context) (*Audience, error)
	GenerateImage(ctx context.Context, prompt, size string) (*Image, error)
	GenerateVariants(ctx context.Context, c Context, count int) ([]Variant, error)
	AnalyzeMetrics(ctx context.Context, metrics map[string]any, scope string) (*Analysis, error)

	// Enabled reports whether a text backend is configured.
	Enabled() bool

	// TextModel names the model used for text, for analytics records.
	TextModel() string

	Close() error
}

// completion is one structured text request.
type completion struct {
	System      string
	User        string
	Temperature float32
}

// textBackend returns the raw JSON text of a completion.
type textBackend interface {
	complete(ctx context.Context, req completion) (string, error)
	model() string
}

// imageBackend generates one image and returns its URL and revised prompt.
type imageBackend interface {
	image(ctx context.Context, prompt, size string) (url, revised string, err error)
	model() string
}

type provider struct {
	text     textBackend
	images   imageBackend
	validate *validator.Validate
}

// New builds the provider selected by cfg. Text goes to cfg.Provider; images
// always use OpenAI when an OpenAI key is set. Missing credentials yield a
// provider whose calls return ErrNotConfigured.
func New(ctx context.Context, cfg config.AIConfig) (Provider, error) {
	p := &provider{validate: validator.New()}

	var oa *openAIBackend
	if cfg.OpenAIKey != "" {
		oa = newOpenAI(cfg.OpenAIKey, cfg.OpenAIBaseURL, cfg.TextModel, cfg.ImageModel)
		p.images = oa
	}

	switch cfg.Provider {
	case config.ProviderGemini:
		if cfg.GeminiKey != "" {
			gb, err := newGemini(ctx, cfg.GeminiKey, cfg.GeminiModel)
			if err != nil {
				return nil, fmt.Errorf("creating gemini backend: %w", err)
			}
			p.text = gb
		}
	default:
		if oa != nil {
			p.text = oa
		}
	}

	if p.text == nil {
		slog.Warn("content provider not configured, generation endpoints will fail",
			slog.String("provider", cfg.Provider),
		)
	} else {
		slog.Info("content provider ready",
			slog.String("provider", cfg.Provider),
			slog.String("text_model", p.text.model()),
		)
	}
	return p, nil
}

// newProvider wires explicit backends. Used by tests.
func newProvider(text textBackend, images imageBackend) *provider {
	return &provider{text: text, images: images, validate: validator.New()}
}

func (p *provider) Enabled() bool { return p.text != nil }

func (p *provider) TextModel() string {
	if p.text == nil {
		return ""
	}
	return p.text.model()
}

func (p *provider) Close() error {
	if c, ok := p.text.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// GenerateCopy writes headline, texts, CTA, an image prompt and a suggested
// campaign name.
func (p *provider) GenerateCopy(ctx context.Context, c Context) (*creative.Copy, error) {
	c = c.WithDefaults()
	if err := p.checkInput(c); err != nil {
		return nil, err
	}

	var out creative.Copy
	if err := p.structured(ctx, "copy", completion{copySystem, copyPrompt(c), 0.75}, &out); err != nil {
		return nil, err
	}
	out = out.Clean()

	slog.Info("copy generated",
		slog.String("product", c.ProductName),
		slog.String("model", p.text.model()),
	)
	return &out, nil
}

// GenerateAudience turns the audience description into a targeting spec.
func (p *provider) GenerateAudience(ctx context.Context, c Context) (*Audience, error) {
	c = c.WithDefaults()
	if err := p.checkInput(c); err != nil {
		return nil, err
	}

	var out Audience
	if err := p.structured(ctx, "audience", completion{audienceSystem, audiencePrompt(c), 0.4}, &out); err != nil {
		return nil, err
	}
	out.Targeting, _ = sanitize.Value(out.Targeting).(map[string]any)
	out.Description = sanitize.PlainText(out.Description)
	for i, s := range out.SuggestedInterests {
		out.SuggestedInterests[i] = sanitize.PlainText(s)
	}
	if out.SuggestedInterests == nil {
		out.SuggestedInterests = []string{}
	}

	slog.Info("audience generated", slog.String("product", c.ProductName))
	return &out, nil
}

// GenerateImage creates one ad image. Unsupported sizes fall back to square.
func (p *provider) GenerateImage(ctx context.Context, prompt, size string) (*Image, error) {
	if p.images == nil {
		return nil, fmt.Errorf("%w: image generation needs an OpenAI key", ErrNotConfigured)
	}
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, fmt.Errorf("%w: image prompt is required", ErrInvalidInput)
	}
	size = NormalizeSize(size)

	url, revised, err := p.images.image(ctx, imagePrompt(prompt), size)
	if err != nil {
		metrics.GeneratorCallsTotal.WithLabelValues("image", "error").Inc()
		return nil, err
	}
	if url == "" {
		metrics.GeneratorCallsTotal.WithLabelValues("image", "malformed").Inc()
		return nil, fmt.Errorf("%w: image response has no url", ErrMalformedResponse)
	}
	metrics.GeneratorCallsTotal.WithLabelValues("image", "success").Inc()

	slog.Info("image generated", slog.String("size", size))
	return &Image{
		URL:           url,
		RevisedPrompt: revised,
		Size:          size,
		Model:         p.images.model(),
		Warning:       "URL expires after about an hour. Archive the image for permanent use.",
	}, nil
}

// GenerateVariants writes count copy variants, each tagged with the next
// approach from Approaches.
func (p *provider) GenerateVariants(ctx context.Context, c Context, count int) ([]Variant, error) {
	if count < MinVariants || count > MaxVariants {
		return nil, fmt.Errorf("%w: variant count must be between %d and %d", ErrInvalidInput, MinVariants, MaxVariants)
	}
	c = c.WithDefaults()
	if err := p.checkInput(c); err != nil {
		return nil, err
	}
	approaches := Approaches[:count]

	var out struct {
		Variants []Variant `json:"variants" validate:"dive"`
	}
	if err := p.structured(ctx, "variants", completion{variantsSystem, variantsPrompt(c, approaches), 0.85}, &out); err != nil {
		return nil, err
	}

	variants := out.Variants
	if len(variants) > count {
		variants = variants[:count]
	}
	for i := range variants {
		a := approaches[i]
		variants[i].Approach = a.Key
		variants[i].Copy = variants[i].Copy.Clean()
		variants[i].Name = sanitize.PlainText(variants[i].Name)
		if variants[i].Name == "" {
			variants[i].Name = fmt.Sprintf("Variant %c - %s", 'A'+i, a.Label)
		}
	}

	slog.Info("variants generated",
		slog.Int("count", len(variants)),
		slog.String("product", c.ProductName),
	)
	return variants, nil
}

// AnalyzeMetrics grades a campaign and suggests actions.
func (p *provider) AnalyzeMetrics(ctx context.Context, m map[string]any, scope string) (*Analysis, error) {
	prompt, err := analysisPrompt(m, scope)
	if err != nil {
		return nil, fmt.Errorf("%w: metrics are not JSON: %v", ErrInvalidInput, err)
	}

	var out Analysis
	if err := p.structured(ctx, "analysis", completion{analysisSystem, prompt, 0.3}, &out); err != nil {
		return nil, err
	}
	out.PerformanceGrade = strings.ToUpper(strings.TrimSpace(out.PerformanceGrade))

	slog.Info("metrics analysis generated", slog.String("grade", out.PerformanceGrade))
	return &out, nil
}

func (p *provider) checkInput(c Context) error {
	if err := p.validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return nil
}

// structured runs a completion and decodes it into out, which must then
// pass validation.
func (p *provider) structured(ctx context.Context, op string, req completion, out any) error {
	if p.text == nil {
		return ErrNotConfigured
	}

	raw, err := p.text.complete(ctx, req)
	if err != nil {
		metrics.GeneratorCallsTotal.WithLabelValues(op, "error").Inc()
		slog.Error("content provider call failed",
			slog.String("operation", op),
			slog.Any("error", err),
		)
		return err
	}

	if err := decode(raw, out); err != nil {
		metrics.GeneratorCallsTotal.WithLabelValues(op, "malformed").Inc()
		return err
	}
	if err := p.validate.Struct(out); err != nil {
		metrics.GeneratorCallsTotal.WithLabelValues(op, "malformed").Inc()
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	metrics.GeneratorCallsTotal.WithLabelValues(op, "success").Inc()
	return nil
}

// decode parses provider JSON. A surrounding markdown code fence is
// tolerated; any other deviation is malformed.
func decode(raw string, out any) error {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(s, "```")
		s = strings.TrimSpace(s)
	}
	if s == "" {
		return fmt.Errorf("%w: empty response", ErrMalformedResponse)
	}

	dec := json.NewDecoder(strings.NewReader(s))
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: trailing data after JSON object", ErrMalformedResponse)
	}
	return nil
}

// IsProviderFailure reports whether err came from the provider itself, as
// opposed to input or configuration problems.
func IsProviderFailure(err error) bool {
	return err != nil && !errors.Is(err, ErrNotConfigured) && !errors.Is(err, ErrInvalidInput)
}
