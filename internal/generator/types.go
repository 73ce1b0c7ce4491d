package generator

import (
	"errors"

	"github.com/keyxmakerx/adpilot/internal/creative"
)

var (
	// ErrNotConfigured is returned by every call when no provider credential
	// is set. Content generation fails closed.
	ErrNotConfigured = errors.New("content provider not configured")

	// ErrMalformedResponse wraps provider output that is not the requested
	// JSON shape. It is never silently repaired.
	ErrMalformedResponse = errors.New("malformed provider response")

	// ErrInvalidInput wraps argument errors caught before calling out.
	ErrInvalidInput = errors.New("invalid input")
)

// Tones the copy prompts understand.
const (
	ToneProfessional  = "professional"
	ToneCasual        = "casual"
	ToneUrgent        = "urgent"
	ToneEmpathetic    = "empathetic"
	TonePlayful       = "playful"
	ToneAuthoritative = "authoritative"
)

// Context describes the product an ad is for. The more detail, the better
// the output.
type Context struct {
	ProductName        string `json:"product_name" validate:"required,max=200"`
	ProductDescription string `json:"product_description" validate:"required,max=2000"`
	TargetAudience     string `json:"target_audience" validate:"required,max=1000"`
	Objective          string `json:"objective,omitempty"`
	Tone               string `json:"tone,omitempty" validate:"omitempty,oneof=professional casual urgent empathetic playful authoritative"`
	Language           string `json:"language,omitempty"`
	Differentials      string `json:"differentials,omitempty"`
}

// WithDefaults fills the optional fields.
func (c Context) WithDefaults() Context {
	if c.Objective == "" {
		c.Objective = "conversion"
	}
	if c.Tone == "" {
		c.Tone = ToneProfessional
	}
	if c.Language == "" {
		c.Language = "en-US"
	}
	return c
}

// Audience is a targeting spec plus notes for the operator. Interests need
// platform ids, so they are suggested as keywords rather than set.
type Audience struct {
	Targeting          map[string]any `json:"targeting" validate:"required"`
	Description        string         `json:"description"`
	SuggestedInterests []string       `json:"suggested_interests"`
	EstimatedReach     string         `json:"estimated_reach"`
}

// Image sizes the image model accepts.
const (
	SizeSquare    = "1024x1024"
	SizeLandscape = "1792x1024"
	SizePortrait  = "1024x1792"
)

// NormalizeSize returns size if supported, otherwise the square default.
func NormalizeSize(size string) string {
	switch size {
	case SizeSquare, SizeLandscape, SizePortrait:
		return size
	default:
		return SizeSquare
	}
}

// Image is a generated image. URL expires after about an hour unless the
// image is archived.
type Image struct {
	URL           string `json:"url"`
	RevisedPrompt string `json:"revised_prompt,omitempty"`
	Size          string `json:"size"`
	Model         string `json:"model"`
	Warning       string `json:"warning,omitempty"`
}

// Approach is a persuasion angle assigned to a variant.
type Approach struct {
	Key         string
	Label       string
	Instruction string
}

// Approaches are assigned to variants in this order.
var Approaches = []Approach{
	{"benefit", "Benefit", "direct benefit: show the main result the customer will get"},
	{"urgency", "Urgency", "urgency or scarcity: create a real sense of urgency (deadline, limited spots, offer)"},
	{"social_proof", "Social proof", "social proof: use approval, numbers or implied testimonials"},
	{"curiosity", "Curiosity", "curiosity: open with a question or a surprising fact"},
}

// Variant counts accepted by GenerateVariants.
const (
	MinVariants = 2
	MaxVariants = 4
)

// Variant is one A/B copy alternative.
type Variant struct {
	Name     string `json:"name"`
	Approach string `json:"approach"`
	creative.Copy
}

// Suggestion is one recommended action from a metrics analysis.
type Suggestion struct {
	Priority string `json:"priority"`
	Action   string `json:"action" validate:"required"`
	Reason   string `json:"reason"`
}

// Analysis is the provider's read of a campaign's metrics.
type Analysis struct {
	PerformanceGrade     string       `json:"performance_grade" validate:"required,oneof=A B C D F"`
	Summary              string       `json:"summary" validate:"required"`
	CriticalIssues       []string     `json:"critical_issues"`
	Suggestions          []Suggestion `json:"suggestions" validate:"dive"`
	CopyRecommendation   string       `json:"copy_recommendation"`
	BudgetRecommendation string       `json:"budget_recommendation"`
}
