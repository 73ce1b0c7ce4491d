package creative

import "testing"

func TestCTACode(t *testing.T) {
	tests := map[string]string{
		"Learn More":    "LEARN_MORE",
		"  shop   NOW ": "SHOP_NOW",
		"Subscribe":     "SUBSCRIBE",
		"Get Offer":     "GET_OFFER",
		"Contact us":    "CONTACT_US",
		"download":      "DOWNLOAD",
		"Sign Up":       "SIGN_UP",
		"Book":          "BOOK_TRAVEL",
		"SHOP_NOW":      "SHOP_NOW",
		"Click here!!":  DefaultCTA,
		"":              DefaultCTA,
	}
	for in, want := range tests {
		if got := CTACode(in); got != want {
			t.Errorf("CTACode(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLinkAd(t *testing.T) {
	c := Copy{Headline: "Fresh beans", PrimaryText: "Roasted today", Description: "Free shipping", CTA: "Shop now"}

	spec := LinkAd(c, "page1", "https://shop.example", "https://img.example/1.png")

	story := spec.ObjectStorySpec
	if story == nil || story.PageID != "page1" {
		t.Fatalf("expected page id page1, got %+v", story)
	}
	ld := story.LinkData
	if ld.Link != "https://shop.example" || ld.Name != "Fresh beans" || ld.Message != "Roasted today" {
		t.Errorf("copy not mapped onto link data: %+v", ld)
	}
	if ld.Description != "Free shipping" || ld.ImageURL != "https://img.example/1.png" {
		t.Errorf("unexpected link data: %+v", ld)
	}
	if ld.CallToAction.Type != "SHOP_NOW" {
		t.Errorf("expected SHOP_NOW, got %s", ld.CallToAction.Type)
	}
}

func TestLinkAd_DefaultsCTA(t *testing.T) {
	spec := LinkAd(Copy{Headline: "h"}, "p", "https://x", "")
	if got := spec.ObjectStorySpec.LinkData.CallToAction.Type; got != DefaultCTA {
		t.Errorf("expected %s, got %s", DefaultCTA, got)
	}
	if spec.ObjectStorySpec.LinkData.ImageURL != "" {
		t.Error("expected no image url")
	}
}

func TestCopyClean(t *testing.T) {
	c := Copy{Headline: "<b>Big</b> sale", PrimaryText: "Tea &amp; cake", CTA: "Shop now"}.Clean()
	if c.Headline != "Big sale" {
		t.Errorf("expected markup stripped, got %q", c.Headline)
	}
	if c.PrimaryText != "Tea & cake" {
		t.Errorf("expected entity decoded, got %q", c.PrimaryText)
	}
}
