package automations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/keyxmakerx/adpilot/internal/apperror"
	"github.com/keyxmakerx/adpilot/internal/metaads"
)

// ErrorRecorder stores a write-once record of a failed remote call. The
// analytics plugin implements it; the registry only needs this one method.
type ErrorRecorder interface {
	RecordError(ctx context.Context, automationID, operation, message string)
}

// Registry is the single writer of automation state. Every other plugin
// reads credentials through it and appends audit entries through it.
type Registry interface {
	// Register validates and upserts a tenant from an API request.
	Register(ctx context.Context, req RegisterRequest) (*Automation, error)

	// Create stores a new automation. Conflict if the id is taken.
	Create(ctx context.Context, a *Automation) error

	// Get returns nil and no error when the automation does not exist.
	Get(ctx context.Context, id string) (*Automation, error)

	// Require is Get with a not-found AppError for a missing automation.
	Require(ctx context.Context, id string) (*Automation, error)

	// Update merges fields and stamps updated_at.
	Update(ctx context.Context, id string, fields map[string]any) error

	// Upsert creates the automation when absent, otherwise merges its
	// account and credential fields. Calling it twice with the same data
	// leaves one record.
	Upsert(ctx context.Context, a *Automation) (*Automation, error)

	SetCampaignReference(ctx context.Context, id, campaignID string) error
	SetStatus(ctx context.Context, id, status string) error

	// UpdateMetricsSnapshot stores the latest insights with a snapshot_at stamp.
	UpdateMetricsSnapshot(ctx context.Context, id string, snapshot map[string]any) error

	// AppendAuditLog adds one entry to the bounded log. Appending to a
	// missing automation logs a warning and does nothing.
	AppendAuditLog(ctx context.Context, id, action string, result any, errMsg string) error

	List(ctx context.Context, status string) ([]Automation, error)
	Delete(ctx context.Context, id string) error

	// AuditLog returns the entries oldest first.
	AuditLog(ctx context.Context, id string) ([]LogEntry, error)

	// RecordFailure handles a failed ad platform call made for id: it logs,
	// appends an audit entry carrying the decoded reason, records an error
	// document, and returns the caller-facing AppError.
	RecordFailure(ctx context.Context, id, action string, err error) error
}

// registry implements Registry.
type registry struct {
	repo   AutomationRepository
	errors ErrorRecorder // May be nil.
	now    func() time.Time
}

// NewRegistry creates the automation registry. recorder may be nil.
func NewRegistry(repo AutomationRepository, recorder ErrorRecorder) Registry {
	return &registry{
		repo:   repo,
		errors: recorder,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *registry) Register(ctx context.Context, req RegisterRequest) (*Automation, error) {
	req = req.normalize()
	if len(req.ID) < 3 || len(req.ID) > 100 {
		return nil, apperror.NewValidation("automation_id must be 3 to 100 characters")
	}
	creds := metaads.Credentials{AppID: req.AppID, AppSecret: req.AppSecret, AccessToken: req.AccessToken}
	if err := creds.Validate(); err != nil {
		return nil, apperror.NewValidation(err.Error())
	}
	if req.AdAccountID == "" {
		return nil, apperror.NewValidation("ad_account_id is required")
	}

	a, err := s.Upsert(ctx, &Automation{
		ID:          req.ID,
		AdAccountID: req.AdAccountID,
		AppID:       req.AppID,
		AppSecret:   req.AppSecret,
		AccessToken: req.AccessToken,
	})
	if err != nil {
		return nil, err
	}

	slog.Info("automation registered",
		slog.String("automation_id", a.ID),
		slog.String("ad_account_id", a.AdAccountID),
		slog.String("app_id", creds.LogID()),
	)
	return a, nil
}

func (s *registry) Create(ctx context.Context, a *Automation) error {
	existing, err := s.repo.FindByID(ctx, a.ID)
	if err != nil {
		return apperror.NewInternal(err)
	}
	if existing != nil {
		return apperror.NewConflict(fmt.Sprintf("automation %q already exists", a.ID))
	}

	now := s.now()
	a.CreatedAt = now
	a.UpdatedAt = now
	if a.Status == "" {
		a.Status = StatusActive
	}
	if err := s.repo.Save(ctx, a); err != nil {
		return apperror.NewInternal(err)
	}
	return nil
}

func (s *registry) Get(ctx context.Context, id string) (*Automation, error) {
	a, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, apperror.NewInternal(err)
	}
	return a, nil
}

func (s *registry) Require(ctx context.Context, id string) (*Automation, error) {
	a, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, apperror.NewNotFound(fmt.Sprintf("automation %q not found", id))
	}
	return a, nil
}

func (s *registry) Update(ctx context.Context, id string, fields map[string]any) error {
	merged := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		merged[k] = v
	}
	merged["updated_at"] = s.now()

	if err := s.repo.Update(ctx, id, merged); err != nil {
		var appErr *apperror.AppError
		if errors.As(err, &appErr) {
			return err
		}
		return apperror.NewInternal(err)
	}
	return nil
}

func (s *registry) Upsert(ctx context.Context, a *Automation) (*Automation, error) {
	existing, err := s.repo.FindByID(ctx, a.ID)
	if err != nil {
		return nil, apperror.NewInternal(err)
	}
	if existing == nil {
		if err := s.Create(ctx, a); err != nil {
			return nil, err
		}
		return a, nil
	}

	fields := map[string]any{
		"ad_account_id": a.AdAccountID,
		"app_id":        a.AppID,
		"app_secret":    a.AppSecret,
		"access_token":  a.AccessToken,
	}
	if err := s.Update(ctx, a.ID, fields); err != nil {
		return nil, err
	}
	return s.Require(ctx, a.ID)
}

func (s *registry) SetCampaignReference(ctx context.Context, id, campaignID string) error {
	return s.Update(ctx, id, map[string]any{"campaign_id": campaignID})
}

func (s *registry) SetStatus(ctx context.Context, id, status string) error {
	if !ValidStatus(status) {
		return apperror.NewValidation(fmt.Sprintf("invalid status %q", status))
	}
	return s.Update(ctx, id, map[string]any{"status": status})
}

func (s *registry) UpdateMetricsSnapshot(ctx context.Context, id string, snapshot map[string]any) error {
	stamped := make(map[string]any, len(snapshot)+1)
	for k, v := range snapshot {
		stamped[k] = v
	}
	stamped["snapshot_at"] = s.now()
	return s.Update(ctx, id, map[string]any{"metrics_snapshot": stamped})
}

func (s *registry) AppendAuditLog(ctx context.Context, id, action string, result any, errMsg string) error {
	a, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return apperror.NewInternal(err)
	}
	if a == nil {
		slog.Warn("audit entry dropped, automation not found",
			slog.String("automation_id", id),
			slog.String("action", action),
		)
		return nil
	}

	now := s.now()
	a.Logs.Append(LogEntry{
		Action:    action,
		Timestamp: now,
		Result:    result,
		Error:     errMsg,
	})

	if err := s.repo.Update(ctx, id, map[string]any{"logs": a.Logs, "updated_at": now}); err != nil {
		return apperror.NewInternal(err)
	}
	return nil
}

func (s *registry) List(ctx context.Context, status string) ([]Automation, error) {
	if status != "" && !ValidStatus(status) {
		return nil, apperror.NewValidation(fmt.Sprintf("invalid status filter %q", status))
	}
	list, err := s.repo.List(ctx, status)
	if err != nil {
		return nil, apperror.NewInternal(err)
	}
	return list, nil
}

func (s *registry) Delete(ctx context.Context, id string) error {
	if _, err := s.Require(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return apperror.NewInternal(err)
	}
	slog.Info("automation deleted", slog.String("automation_id", id))
	return nil
}

func (s *registry) AuditLog(ctx context.Context, id string) ([]LogEntry, error) {
	a, err := s.Require(ctx, id)
	if err != nil {
		return nil, err
	}
	return a.Logs.Entries(), nil
}

func (s *registry) RecordFailure(ctx context.Context, id, action string, err error) error {
	if errors.Is(err, metaads.ErrMissingCredentials) {
		return apperror.NewBadRequest("automation credentials are incomplete, register the automation again")
	}

	reason := metaads.Describe(err)
	slog.Error("ad platform call failed",
		slog.String("automation_id", id),
		slog.String("action", action),
		slog.Any("error", err),
	)

	// The caller's context may already be done; the audit trail still
	// needs writing.
	writeCtx := context.WithoutCancel(ctx)
	if aerr := s.AppendAuditLog(writeCtx, id, action, nil, reason); aerr != nil {
		slog.Warn("recording audit entry for failure",
			slog.String("automation_id", id),
			slog.Any("error", aerr),
		)
	}
	if s.errors != nil {
		s.errors.RecordError(writeCtx, id, action, reason)
	}
	return apperror.NewRemote(reason, err)
}
