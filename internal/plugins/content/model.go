// Package content exposes the generative content provider over HTTP. Each
// generation tied to an automation is recorded for later feedback.
package content

import (
	"github.com/keyxmakerx/adpilot/internal/creative"
	"github.com/keyxmakerx/adpilot/internal/generator"
)

// GenerateRequest asks for copy or an audience for one product.
type GenerateRequest struct {
	AutomationID string            `json:"automation_id"`
	Context      generator.Context `json:"context" validate:"required"`
}

// ImageRequest asks for one image. Archive copies it to durable storage.
type ImageRequest struct {
	AutomationID string `json:"automation_id"`
	Prompt       string `json:"prompt" validate:"required,max=4000"`
	Size         string `json:"size"`
	Archive      bool   `json:"archive"`
}

// VariantsRequest asks for count alternative copies.
type VariantsRequest struct {
	AutomationID string            `json:"automation_id"`
	Context      generator.Context `json:"context" validate:"required"`
	Count        int               `json:"count"`
}

// AnalysisRequest asks the provider to read a campaign's metrics.
type AnalysisRequest struct {
	AutomationID string         `json:"automation_id"`
	Metrics      map[string]any `json:"metrics" validate:"required"`
	Scope        string         `json:"context"`
}

// CopyResult is returned by GenerateCopy.
type CopyResult struct {
	Copy        creative.Copy `json:"copy"`
	AIHistoryID string        `json:"ai_history_id,omitempty"`
}

// AudienceResult is returned by GenerateAudience.
type AudienceResult struct {
	generator.Audience
	AIHistoryID string `json:"ai_history_id,omitempty"`
}

// ImageResult is returned by GenerateImage.
type ImageResult struct {
	generator.Image
	Archived    bool   `json:"archived"`
	ObjectKey   string `json:"object_key,omitempty"`
	AIHistoryID string `json:"ai_history_id,omitempty"`
}

// VariantsResult is returned by GenerateVariants.
type VariantsResult struct {
	Variants    []generator.Variant `json:"variants"`
	Total       int                 `json:"total"`
	AIHistoryID string              `json:"ai_history_id,omitempty"`
}
