package generator

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/keyxmakerx/adpilot/internal/creative"
)

const copySystem = "You are a senior copywriter for Facebook and Instagram ads. " +
	"You write persuasive, direct copy optimized for conversion. " +
	"Answer ONLY with valid JSON, no markdown and no extra explanation."

func copyPrompt(c Context) string {
	var b strings.Builder
	b.WriteString("Write complete copy for one ad.\n\n")
	writeContext(&b, c)
	fmt.Fprintf(&b, `
Return ONLY this JSON:
{
  "headline": "short, direct title (max %d characters)",
  "primary_text": "persuasive main text with a clear benefit (max %d characters)",
  "description": "line reinforcing the call to action (max %d characters)",
  "cta": "call to action, e.g. Learn More, Shop Now, Sign Up, Get Offer",
  "image_prompt": "detailed English image description: scene, style, colors, mood, no text in the image",
  "campaign_name": "suggested internal campaign name, e.g. Camp_Product_Objective_Month"
}`, creative.MaxHeadline, creative.MaxPrimaryText, creative.MaxDescription)
	return b.String()
}

const audienceSystem = "You are an ad targeting specialist. " +
	"Turn audience descriptions into valid targeting specs for the Marketing API. " +
	"Only use fields that work without interest ids. Answer ONLY with valid JSON."

func audiencePrompt(c Context) string {
	return fmt.Sprintf(`Build audience targeting for an ad.

Product: %s
Described audience: %s
Objective: %s

Return ONLY this JSON:
{
  "targeting": {
    "geo_locations": {"countries": ["US"], "location_types": ["home", "recent"]},
    "age_min": 18,
    "age_max": 65,
    "genders": [0]
  },
  "description": "plain-language summary of the targeting",
  "suggested_interests": ["keywords", "to", "look", "up", "in", "audience", "insights"],
  "estimated_reach": "reach estimate, e.g. 500K - 2M"
}

Adjust age_min, age_max and genders to the described audience.
genders: 0 = all, 1 = men, 2 = women.`, c.ProductName, c.TargetAudience, c.Objective)
}

func imagePrompt(prompt string) string {
	return "Professional advertising image for Facebook and Instagram ads. " +
		"High quality, modern, visually compelling. " +
		"NO text overlays, NO watermarks, NO logos. " +
		"Style: clean professional photography or digital art. " + prompt
}

const variantsSystem = "You are an A/B testing specialist for social ads. " +
	"You write copy variants with clearly different persuasion angles " +
	"to find out which converts best. Answer ONLY with valid JSON."

func variantsPrompt(c Context, approaches []Approach) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write %d copy variants for an A/B test.\n\n", len(approaches))
	writeContext(&b, c)
	b.WriteString("\nAngles to use, one per variant, in this order:\n")
	for i, a := range approaches {
		fmt.Fprintf(&b, "  - Variant %c: %s\n", 'A'+i, a.Instruction)
	}
	fmt.Fprintf(&b, `
Return ONLY this JSON:
{
  "variants": [
    {
      "name": "Variant A - Benefit",
      "approach": "benefit",
      "headline": "title (max %d chars)",
      "primary_text": "main text (max %d chars)",
      "description": "short description (max %d chars)",
      "cta": "call to action"
    }
  ]
}

Each variant must clearly differ from the others in tone and angle.`,
		creative.MaxHeadline, creative.MaxPrimaryText, creative.MaxDescription)
	return b.String()
}

const analysisSystem = "You are a performance specialist for social ads. " +
	"You analyze campaign metrics and suggest practical optimizations. " +
	"Be direct and specific. Answer ONLY with valid JSON."

func analysisPrompt(metrics map[string]any, scope string) (string, error) {
	raw, err := json.MarshalIndent(metrics, "", "  ")
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(`Analyze this campaign's metrics and suggest actions.

Scope: %s

Current metrics:
%s

Return ONLY this JSON:
{
  "performance_grade": "A, B, C, D or F",
  "summary": "one or two sentence summary of overall performance",
  "critical_issues": ["problems needing immediate action"],
  "suggestions": [
    {"priority": "high, medium or low", "action": "specific action", "reason": "why it helps"}
  ],
  "copy_recommendation": "keep, test or rewrite the current copy",
  "budget_recommendation": "increase, keep or reduce the budget"
}`, scope, raw), nil
}

func writeContext(b *strings.Builder, c Context) {
	fmt.Fprintf(b, "Product: %s\n", c.ProductName)
	fmt.Fprintf(b, "Description: %s\n", c.ProductDescription)
	if c.Differentials != "" {
		fmt.Fprintf(b, "Differentials: %s\n", c.Differentials)
	}
	fmt.Fprintf(b, "Audience: %s\n", c.TargetAudience)
	fmt.Fprintf(b, "Objective: %s\n", c.Objective)
	fmt.Fprintf(b, "Tone: %s\n", c.Tone)
	fmt.Fprintf(b, "Language: %s\n", c.Language)
}
