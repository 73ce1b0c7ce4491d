// Package automations is the registry of tenants. An automation holds one
// tenant's ad account and platform credentials, its most recent campaign,
// an operational status, the last metrics snapshot, and a bounded audit log
// of every action taken on its behalf.
//
// The registry is the single writer of automation state. The orchestrator,
// the A/B engine and the optimizer read credentials from it and append
// audit entries through it; none of them write credential fields.
package automations

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/keyxmakerx/adpilot/internal/metaads"
)

// Operational statuses.
const (
	StatusActive = "active"
	StatusPaused = "paused"
	StatusError  = "error"
)

// ValidStatus reports whether s is a known operational status.
func ValidStatus(s string) bool {
	return s == StatusActive || s == StatusPaused || s == StatusError
}

// Automation is one tenant record.
type Automation struct {
	ID              string         `json:"automation_id"`
	AdAccountID     string         `json:"ad_account_id"`
	AppID           string         `json:"app_id"`
	AppSecret       string         `json:"app_secret"`
	AccessToken     string         `json:"access_token"`
	CampaignID      string         `json:"campaign_id,omitempty"`
	Status          string         `json:"status"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	Logs            AuditLog       `json:"logs"`
	MetricsSnapshot map[string]any `json:"metrics_snapshot,omitempty"`
}

// Credentials returns the platform credentials for a call on this tenant's
// behalf.
func (a *Automation) Credentials() metaads.Credentials {
	return metaads.Credentials{
		AppID:       a.AppID,
		AppSecret:   a.AppSecret,
		AccessToken: a.AccessToken,
	}
}

// View is an automation with secrets removed, as returned by the API.
type View struct {
	ID              string         `json:"automation_id"`
	AdAccountID     string         `json:"ad_account_id"`
	AppID           string         `json:"app_id"`
	CampaignID      string         `json:"campaign_id,omitempty"`
	Status          string         `json:"status"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	LogCount        int            `json:"log_count"`
	MetricsSnapshot map[string]any `json:"metrics_snapshot,omitempty"`
}

// Redacted drops the app secret and access token.
func (a *Automation) Redacted() View {
	return View{
		ID:              a.ID,
		AdAccountID:     a.AdAccountID,
		AppID:           a.AppID,
		CampaignID:      a.CampaignID,
		Status:          a.Status,
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
		LogCount:        a.Logs.Len(),
		MetricsSnapshot: a.MetricsSnapshot,
	}
}

// --- Audit log ---

// AuditCapacity is the maximum number of entries kept per automation.
const AuditCapacity = 100

// LogEntry is one audit record. Write-once.
type LogEntry struct {
	Action    string    `json:"action"`
	Timestamp time.Time `json:"timestamp"`
	Result    any       `json:"result,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// AuditLog is a fixed-capacity ring of LogEntry. When full, Append
// overwrites the oldest entry. It encodes as an oldest-first JSON array.
// The zero value is an empty log.
type AuditLog struct {
	buf   []LogEntry
	start int
	n     int
}

// Append adds e, evicting the oldest entry when the log is full.
func (l *AuditLog) Append(e LogEntry) {
	if l.buf == nil {
		l.buf = make([]LogEntry, AuditCapacity)
	}
	if l.n < AuditCapacity {
		l.buf[(l.start+l.n)%AuditCapacity] = e
		l.n++
		return
	}
	l.buf[l.start] = e
	l.start = (l.start + 1) % AuditCapacity
}

// Len returns the number of entries held.
func (l AuditLog) Len() int { return l.n }

// Entries returns the entries oldest first.
func (l AuditLog) Entries() []LogEntry {
	out := make([]LogEntry, l.n)
	for i := 0; i < l.n; i++ {
		out[i] = l.buf[(l.start+i)%AuditCapacity]
	}
	return out
}

// MarshalJSON implements json.Marshaler.
func (l AuditLog) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.Entries())
}

// UnmarshalJSON implements json.Unmarshaler. Only the newest AuditCapacity
// entries of a longer array are kept.
func (l *AuditLog) UnmarshalJSON(data []byte) error {
	var entries []LogEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return err
	}
	*l = AuditLog{}
	if len(entries) > AuditCapacity {
		entries = entries[len(entries)-AuditCapacity:]
	}
	for _, e := range entries {
		l.Append(e)
	}
	return nil
}

// --- Request DTOs ---

// RegisterRequest onboards or updates a tenant.
type RegisterRequest struct {
	ID          string `json:"automation_id" validate:"required,min=3,max=100"`
	AdAccountID string `json:"ad_account_id" validate:"required"`
	AccessToken string `json:"access_token" validate:"required"`
	AppID       string `json:"app_id" validate:"required"`
	AppSecret   string `json:"app_secret" validate:"required"`
}

// normalize trims fields and adds the account prefix.
func (r RegisterRequest) normalize() RegisterRequest {
	r.ID = strings.TrimSpace(r.ID)
	r.AdAccountID = metaads.NormalizeAccountID(r.AdAccountID)
	r.AccessToken = strings.TrimSpace(r.AccessToken)
	r.AppID = strings.TrimSpace(r.AppID)
	r.AppSecret = strings.TrimSpace(r.AppSecret)
	return r
}
