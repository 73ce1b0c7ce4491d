package content

import (
	"context"
	"log/slog"
	"strings"

	"github.com/keyxmakerx/adpilot/internal/apperror"
	"github.com/keyxmakerx/adpilot/internal/generator"
	"github.com/keyxmakerx/adpilot/internal/imagestore"
	"github.com/keyxmakerx/adpilot/internal/plugins/analytics"
)

// ImageArchiver copies a generated image to durable storage.
type ImageArchiver interface {
	Archive(ctx context.Context, sourceURL, owner string) (*imagestore.Archived, error)
}

// GenerationRecorder stores AI generation records.
type GenerationRecorder interface {
	RecordAIGeneration(ctx context.Context, g *analytics.AIGeneration) (string, error)
}

// ContentService wraps the provider with input checks, archiving and
// analytics.
type ContentService interface {
	GenerateCopy(ctx context.Context, req GenerateRequest) (*CopyResult, error)
	GenerateAudience(ctx context.Context, req GenerateRequest) (*AudienceResult, error)
	GenerateImage(ctx context.Context, req ImageRequest) (*ImageResult, error)
	GenerateVariants(ctx context.Context, req VariantsRequest) (*VariantsResult, error)
	AnalyzeMetrics(ctx context.Context, req AnalysisRequest) (*generator.Analysis, error)
}

type contentService struct {
	provider generator.Provider
	images   ImageArchiver
	recorder GenerationRecorder
}

// NewContentService creates the content service. images and recorder may
// be nil.
func NewContentService(provider generator.Provider, images ImageArchiver, recorder GenerationRecorder) ContentService {
	if images == nil {
		images = (*imagestore.Store)(nil)
	}
	return &contentService{provider: provider, images: images, recorder: recorder}
}

func (s *contentService) GenerateCopy(ctx context.Context, req GenerateRequest) (*CopyResult, error) {
	cp, err := s.provider.GenerateCopy(ctx, req.Context)
	if err != nil {
		return nil, generator.AsAppError(err)
	}
	return &CopyResult{
		Copy:        *cp,
		AIHistoryID: s.record(ctx, req.AutomationID, analytics.GenerationCopy, req.Context, cp, "copy"),
	}, nil
}

func (s *contentService) GenerateAudience(ctx context.Context, req GenerateRequest) (*AudienceResult, error) {
	aud, err := s.provider.GenerateAudience(ctx, req.Context)
	if err != nil {
		return nil, generator.AsAppError(err)
	}
	return &AudienceResult{
		Audience:    *aud,
		AIHistoryID: s.record(ctx, req.AutomationID, analytics.GenerationAudience, req.Context, aud, "targeting"),
	}, nil
}

func (s *contentService) GenerateImage(ctx context.Context, req ImageRequest) (*ImageResult, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, apperror.NewValidation("prompt is required")
	}
	img, err := s.provider.GenerateImage(ctx, prompt, generator.NormalizeSize(req.Size))
	if err != nil {
		return nil, generator.AsAppError(err)
	}

	res := &ImageResult{Image: *img}
	if req.Archive {
		owner := req.AutomationID
		if owner == "" {
			owner = "adhoc"
		}
		archived, err := s.images.Archive(ctx, img.URL, owner)
		if err != nil {
			slog.Warn("image archive failed, using provider url", slog.Any("error", err))
		} else {
			res.URL = archived.URL
			res.Archived = archived.Archived
			res.ObjectKey = archived.Object
		}
	}
	res.AIHistoryID = s.record(ctx, req.AutomationID, analytics.GenerationImage,
		map[string]any{"prompt": prompt, "size": img.Size}, res, "image")
	return res, nil
}

func (s *contentService) GenerateVariants(ctx context.Context, req VariantsRequest) (*VariantsResult, error) {
	count := req.Count
	if count == 0 {
		count = generator.MinVariants
	}
	if count < generator.MinVariants || count > generator.MaxVariants {
		return nil, apperror.NewValidation("count must be between 2 and 4")
	}
	variants, err := s.provider.GenerateVariants(ctx, req.Context, count)
	if err != nil {
		return nil, generator.AsAppError(err)
	}
	return &VariantsResult{
		Variants:    variants,
		Total:       len(variants),
		AIHistoryID: s.record(ctx, req.AutomationID, analytics.GenerationVariants, req.Context, variants, "copy"),
	}, nil
}

func (s *contentService) AnalyzeMetrics(ctx context.Context, req AnalysisRequest) (*generator.Analysis, error) {
	if len(req.Metrics) == 0 {
		return nil, apperror.NewValidation("metrics are required")
	}
	analysis, err := s.provider.AnalyzeMetrics(ctx, req.Metrics, req.Scope)
	if err != nil {
		return nil, generator.AsAppError(err)
	}
	return analysis, nil
}

// record stores a generation made for an automation and returns its id.
// Generations without an automation are not recorded.
func (s *contentService) record(ctx context.Context, automationID, kind string, input, output any, field string) string {
	if s.recorder == nil || automationID == "" {
		return ""
	}
	id, err := s.recorder.RecordAIGeneration(ctx, &analytics.AIGeneration{
		AutomationID:   automationID,
		GenerationType: kind,
		Context:        input,
		Output:         output,
		AIFields:       []string{field},
		Model:          s.provider.TextModel(),
	})
	if err != nil {
		slog.Warn("ai generation not recorded",
			slog.String("automation_id", automationID),
			slog.String("generation_type", kind),
			slog.Any("error", err),
		)
		return ""
	}
	return id
}
