// Package creative holds the ad copy shape shared by the orchestrator, the
// A/B engine and the content provider, and turns copy into the platform's
// link-ad creative.
package creative

import (
	"strings"

	"github.com/keyxmakerx/adpilot/internal/metaads"
	"github.com/keyxmakerx/adpilot/internal/sanitize"
)

// Length limits the platform recommends for link ads.
const (
	MaxHeadline    = 40
	MaxPrimaryText = 125
	MaxDescription = 30
)

// DefaultCTA is used for any call-to-action text not in the lookup table.
const DefaultCTA = "LEARN_MORE"

// ctaCodes maps normalized call-to-action text to platform CTA codes.
var ctaCodes = map[string]string{
	"learn more":   "LEARN_MORE",
	"shop now":     "SHOP_NOW",
	"subscribe":    "SUBSCRIBE",
	"get offer":    "GET_OFFER",
	"contact us":   "CONTACT_US",
	"download":     "DOWNLOAD",
	"sign up":      "SIGN_UP",
	"book now":     "BOOK_TRAVEL",
	"book":         "BOOK_TRAVEL",
	"apply now":    "APPLY_NOW",
	"get quote":    "GET_QUOTE",
	"order now":    "ORDER_NOW",
	"watch more":   "WATCH_MORE",
	"send message": "MESSAGE_PAGE",
}

// CTACode resolves call-to-action text to a platform code. Text that is
// already a known code passes through.
func CTACode(text string) string {
	norm := strings.ToLower(strings.Join(strings.Fields(text), " "))
	if code, ok := ctaCodes[norm]; ok {
		return code
	}
	upper := strings.ToUpper(strings.ReplaceAll(norm, " ", "_"))
	for _, code := range ctaCodes {
		if code == upper {
			return code
		}
	}
	return DefaultCTA
}

// Copy is the text of one ad.
type Copy struct {
	Headline     string `json:"headline" validate:"required"`
	PrimaryText  string `json:"primary_text"`
	Description  string `json:"description"`
	CTA          string `json:"cta"`
	ImagePrompt  string `json:"image_prompt,omitempty"`
	CampaignName string `json:"campaign_name,omitempty"`
}

// Clean strips markup from every field. Length limits are not enforced here;
// the platform truncates on display.
func (c Copy) Clean() Copy {
	return Copy{
		Headline:     sanitize.PlainText(c.Headline),
		PrimaryText:  sanitize.PlainText(c.PrimaryText),
		Description:  sanitize.PlainText(c.Description),
		CTA:          sanitize.PlainText(c.CTA),
		ImagePrompt:  sanitize.PlainText(c.ImagePrompt),
		CampaignName: sanitize.PlainText(c.CampaignName),
	}
}

// LinkAd builds an inline link-ad creative published by pageID. imageURL is
// optional.
func LinkAd(c Copy, pageID, link, imageURL string) metaads.CreativeSpec {
	cta := c.CTA
	if cta == "" {
		cta = DefaultCTA
	}
	return metaads.CreativeSpec{
		ObjectStorySpec: &metaads.ObjectStorySpec{
			PageID: pageID,
			LinkData: &metaads.LinkData{
				Link:         link,
				Message:      c.PrimaryText,
				Name:         c.Headline,
				Description:  c.Description,
				ImageURL:     imageURL,
				CallToAction: &metaads.CallToAction{Type: CTACode(cta)},
			},
		},
	}
}
