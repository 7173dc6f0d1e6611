package facts

import (
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/pdp-auditor/internal/audit"
)

const (
	skipLinkSelector = `a[href="#main"], a[href="#MainContent"], a[href="#content"], a[href="#main-content"], .skip-link, .skip-to-content, [class*=skip-to]`
	landmarkSelector = `main, nav, header, footer, aside, [role=main], [role=navigation], [role=banner], [role=contentinfo], [role=complementary]`
)

var themePatterns = []*regexp.Regexp{
	regexp.MustCompile(`Shopify\.theme\s*=\s*\{[^}]*?"name"\s*:\s*"([^"]+)"`),
	regexp.MustCompile(`wp-content/themes/([A-Za-z0-9_-]+)`),
	regexp.MustCompile(`/static/(?:version\d+/)?frontend/([^/]+/[^/]+)/`),
	regexp.MustCompile(`data-theme-name="([^"]+)"`),
}

func technicalFacts(d *Document, markup string) audit.TechnicalFacts {
	tf := audit.TechnicalFacts{
		Integrations:    []string{},
		RegistryVersion: d.registry.Version,
	}
	for _, m := range d.registry.Detect(d.lower) {
		if m.Category == categoryPlatform {
			if tf.Platform == "" {
				tf.Platform = m.Name
			}
			continue
		}
		tf.Integrations = append(tf.Integrations, m.Name)
		switch m.Name {
		case "google_analytics_4":
			tf.HasGA4 = true
		case "google_tag_manager":
			tf.HasGTM = true
		case "meta_pixel":
			tf.HasMetaPixel = true
		}
	}
	sort.Strings(tf.Integrations)
	for _, re := range themePatterns {
		if m := re.FindStringSubmatch(markup); m != nil {
			tf.Theme = m[1]
			break
		}
	}
	tf.Accessibility = accessibilityFacts(d)
	d.doc.Find("head script[src]").Each(func(_ int, s *goquery.Selection) {
		_, async := s.Attr("async")
		_, deferred := s.Attr("defer")
		if !async && !deferred && !strings.EqualFold(s.AttrOr("type", ""), "module") {
			tf.BlockingScriptCount++
		}
	})
	return tf
}

func accessibilityFacts(d *Document) audit.AccessibilityFacts {
	var af audit.AccessibilityFacts
	af.HasLangAttr = strings.TrimSpace(d.doc.Find("html").AttrOr("lang", "")) != ""
	af.HasSkipLink = d.doc.Find(skipLinkSelector).Length() > 0
	af.LandmarkCount = d.doc.Find(landmarkSelector).Length()

	d.doc.Find("button").Each(func(_ int, b *goquery.Selection) {
		if !hasAccessibleName(b) && collapse(b.Text()) == "" && b.Find("img[alt]:not([alt=''])").Length() == 0 {
			af.UnnamedButtons++
		}
	})
	d.doc.Find("input, select, textarea").Each(func(_ int, in *goquery.Selection) {
		switch strings.ToLower(in.AttrOr("type", "")) {
		case "hidden", "submit", "button", "image", "reset":
			return
		}
		if hasAccessibleName(in) || in.Closest("label").Length() > 0 {
			return
		}
		if id := in.AttrOr("id", ""); id != "" && d.doc.Find(`label[for="`+id+`"]`).Length() > 0 {
			return
		}
		af.UnlabeledFormInputs++
	})
	return af
}

func hasAccessibleName(s *goquery.Selection) bool {
	for _, attr := range []string{"aria-label", "aria-labelledby", "title"} {
		if strings.TrimSpace(s.AttrOr(attr, "")) != "" {
			return true
		}
	}
	return false
}
