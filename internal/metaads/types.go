package metaads

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
)

// AccountPrefix is required on every ad account id sent to the platform.
const AccountPrefix = "act_"

// NormalizeAccountID adds the account prefix when it is missing.
func NormalizeAccountID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" || strings.HasPrefix(id, AccountPrefix) {
		return id
	}
	return AccountPrefix + id
}

// Credentials identify one tenant's app and user token. They are passed into
// every call and never stored on the Client.
type Credentials struct {
	AppID       string
	AppSecret   string
	AccessToken string
}

// Validate reports whether the credentials are usable at all.
func (c Credentials) Validate() error {
	if c.AccessToken == "" {
		return errors.New("access token is required")
	}
	if c.AppID == "" {
		return errors.New("app id is required")
	}
	return nil
}

// appSecretProof signs the access token with the app secret. Empty when the
// secret is not set.
func (c Credentials) appSecretProof() string {
	if c.AppSecret == "" {
		return ""
	}
	mac := hmac.New(sha256.New, []byte(c.AppSecret))
	mac.Write([]byte(c.AccessToken))
	return hex.EncodeToString(mac.Sum(nil))
}

// LogID is the app id truncated for log lines.
func (c Credentials) LogID() string {
	if len(c.AppID) <= 8 {
		return c.AppID
	}
	return c.AppID[:8] + "..."
}

// Status is the delivery status of a campaign, ad set or ad.
type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusPaused   Status = "PAUSED"
	StatusArchived Status = "ARCHIVED"
	StatusDeleted  Status = "DELETED"
)

// Writable reports whether the status may be set by write paths.
func (s Status) Writable() bool {
	return s == StatusActive || s == StatusPaused
}

// CampaignParams are the fields sent when creating a campaign. Exactly one
// of DailyBudget and LifetimeBudget is expected; the caller validates that.
type CampaignParams struct {
	Name                string
	Objective           string
	Status              Status
	SpecialAdCategories []string
	DailyBudget         *int64
	LifetimeBudget      *int64
}

// AdSetParams are the fields sent when creating an ad set.
type AdSetParams struct {
	CampaignID       string
	Name             string
	DailyBudget      int64
	BillingEvent     string
	OptimizationGoal string
	Targeting        map[string]any
	Status           Status
	StartTime        string
	EndTime          string
}

// AdParams are the fields sent when creating an ad.
type AdParams struct {
	AdSetID  string
	Name     string
	Creative CreativeSpec
	Status   Status
}

// BudgetUpdate changes one or both campaign budgets. Nil fields are left alone.
type BudgetUpdate struct {
	DailyBudget    *int64 `json:"daily_budget,omitempty"`
	LifetimeBudget *int64 `json:"lifetime_budget,omitempty"`
}

// Empty reports whether the update carries no budget at all.
func (b BudgetUpdate) Empty() bool {
	return b.DailyBudget == nil && b.LifetimeBudget == nil
}

// Object is the summary returned after creating or updating a platform object.
type Object struct {
	ID         string `json:"id"`
	Name       string `json:"name,omitempty"`
	Status     Status `json:"status,omitempty"`
	CampaignID string `json:"campaign_id,omitempty"`
	AdSetID    string `json:"adset_id,omitempty"`

	DailyBudget    *int64 `json:"daily_budget,omitempty"`
	LifetimeBudget *int64 `json:"lifetime_budget,omitempty"`
}

// Campaign is a campaign as listed by the platform. Budgets come back as
// decimal strings in minor currency units.
type Campaign struct {
	ID             string `json:"id"`
	Name           string `json:"name,omitempty"`
	Status         string `json:"status,omitempty"`
	Objective      string `json:"objective,omitempty"`
	DailyBudget    string `json:"daily_budget,omitempty"`
	LifetimeBudget string `json:"lifetime_budget,omitempty"`
	CreatedTime    string `json:"created_time,omitempty"`
	StartTime      string `json:"start_time,omitempty"`
	StopTime       string `json:"stop_time,omitempty"`
}

// DailyBudgetMinor returns the daily budget in minor units, or 0 when the
// campaign budgets at the lifetime or ad set level.
func (c Campaign) DailyBudgetMinor() int64 {
	n, err := strconv.ParseInt(c.DailyBudget, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// datePresets are the named insight periods. "maximum" is the whole
// lifetime of the object.
var datePresets = map[string]bool{
	"today":      true,
	"yesterday":  true,
	"last_7d":    true,
	"last_14d":   true,
	"last_30d":   true,
	"last_90d":   true,
	"this_month": true,
	"last_month": true,
	"maximum":    true,
}

// DefaultDatePreset is used when a caller names no period.
const DefaultDatePreset = "last_7d"

// ValidDatePreset reports whether p is a known insight period.
func ValidDatePreset(p string) bool {
	return datePresets[p]
}

// Insights is one row of performance metrics. The platform returns most
// numbers as strings; use Float to read them.
type Insights map[string]any

// Empty reports whether the period had no data.
func (i Insights) Empty() bool {
	return len(i) == 0
}

// Float coerces a metric to a number. Absent or non-numeric values are 0.
func (i Insights) Float(name string) float64 {
	switch v := i[name].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0
		}
		return f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

// CreativeSpec is the inline creative attached to an ad. Fields this system
// reads are named; everything else the platform accepts rides in Extra and
// is written back unchanged.
type CreativeSpec struct {
	Name            string           `json:"name,omitempty"`
	ObjectStorySpec *ObjectStorySpec `json:"object_story_spec,omitempty"`
	Extra           map[string]any   `json:"-"`
}

// ObjectStorySpec ties a creative to the page that publishes it.
type ObjectStorySpec struct {
	PageID   string         `json:"page_id"`
	LinkData *LinkData      `json:"link_data,omitempty"`
	Extra    map[string]any `json:"-"`
}

// LinkData is the body of a link ad.
type LinkData struct {
	Link         string         `json:"link"`
	Message      string         `json:"message,omitempty"`
	Name         string         `json:"name,omitempty"`
	Description  string         `json:"description,omitempty"`
	ImageURL     string         `json:"image_url,omitempty"`
	CallToAction *CallToAction  `json:"call_to_action,omitempty"`
	Extra        map[string]any `json:"-"`
}

// CallToAction is the button shown on the ad.
type CallToAction struct {
	Type  string         `json:"type"`
	Value map[string]any `json:"value,omitempty"`
}

func (s CreativeSpec) MarshalJSON() ([]byte, error) {
	type plain CreativeSpec
	return marshalWithExtra(plain(s), s.Extra)
}

func (s *CreativeSpec) UnmarshalJSON(data []byte) error {
	type plain CreativeSpec
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	extra, err := extraFields(data, "name", "object_story_spec")
	if err != nil {
		return err
	}
	*s = CreativeSpec(p)
	s.Extra = extra
	return nil
}

func (s ObjectStorySpec) MarshalJSON() ([]byte, error) {
	type plain ObjectStorySpec
	return marshalWithExtra(plain(s), s.Extra)
}

func (s *ObjectStorySpec) UnmarshalJSON(data []byte) error {
	type plain ObjectStorySpec
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	extra, err := extraFields(data, "page_id", "link_data")
	if err != nil {
		return err
	}
	*s = ObjectStorySpec(p)
	s.Extra = extra
	return nil
}

func (d LinkData) MarshalJSON() ([]byte, error) {
	type plain LinkData
	return marshalWithExtra(plain(d), d.Extra)
}

func (d *LinkData) UnmarshalJSON(data []byte) error {
	type plain LinkData
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	extra, err := extraFields(data, "link", "message", "name", "description", "image_url", "call_to_action")
	if err != nil {
		return err
	}
	*d = LinkData(p)
	d.Extra = extra
	return nil
}

// marshalWithExtra encodes v and merges extra keys that v does not set.
func marshalWithExtra(v any, extra map[string]any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil || len(extra) == 0 {
		return b, err
	}

	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	for k, x := range extra {
		if _, ok := m[k]; !ok {
			m[k] = x
		}
	}
	return json.Marshal(m)
}

// extraFields returns the object keys of data not listed in known, or nil
// when there are none.
func extraFields(data []byte, known ...string) (map[string]any, error) {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	for _, k := range known {
		delete(m, k)
	}
	if len(m) == 0 {
		return nil, nil
	}
	return m, nil
}
