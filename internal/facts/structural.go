package facts

import (
	"math"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/pdp-auditor/internal/audit"
)

const (
	reviewSelector = `[itemprop=aggregateRating], [itemprop=review], [class*=review], [id*=review], [class*=rating], [data-review], .jdgm-widget, .yotpo, .okeReviews, .stamped-main-widget`
	noiseSelector  = `[class*=announcement], [class*=promo-bar], [class*=top-bar], [class*=topbar], [class*=marquee], [class*=popup], [role=dialog], [class*=newsletter-modal], [class*=countdown], [class*=cookie-banner]`
	trustSelector  = `[class*=trust], [class*=badge], [class*=guarantee], [class*=secure], [class*=payment-icons], [class*=payment-icon]`
	// ctaNeighborhood is how many ancestors of the CTA are searched for badges.
	ctaNeighborhood = 3
)

func structuralFacts(d *Document, cta *goquery.Selection) audit.StructuralFacts {
	var sf audit.StructuralFacts
	sf.H1Count = d.doc.Find("h1").Length()
	sf.H2Count = d.doc.Find("h2").Length()
	sf.H3Count = d.doc.Find("h3").Length()

	d.doc.Find("img").Each(func(_ int, img *goquery.Selection) {
		if img.AttrOr("width", "") == "1" && img.AttrOr("height", "") == "1" {
			return
		}
		sf.ImageCount++
		if strings.TrimSpace(img.AttrOr("alt", "")) != "" {
			sf.ImagesWithAlt++
		} else {
			sf.ImagesWithoutAlt++
		}
		if isLazy(img) {
			sf.LazyImageCount++
		}
	})
	if sf.ImageCount > 0 {
		sf.AltCoverage = math.Round(float64(sf.ImagesWithAlt)/float64(sf.ImageCount)*1000) / 1000
	}

	lowerMain := strings.ToLower(d.mainText)
	kw := d.registry.Keywords
	sf.HasReviews = hasStructuredReviews(d) ||
		d.main.Find(reviewSelector).Length() > 0 ||
		containsAny(lowerMain, kw.Reviews)
	sf.HasShippingInfo = containsAny(lowerMain, kw.Shipping)
	sf.HasReturnsInfo = containsAny(lowerMain, kw.Returns)
	sf.HasSocialProof = containsAny(lowerMain, kw.SocialProof)
	sf.FormCount = d.doc.Find("form").Length()
	sf.TrustBadgeNearCTA = trustNearCTA(d, cta)
	sf.AboveFoldNoise = aboveFoldNoise(d)
	return sf
}

func isLazy(img *goquery.Selection) bool {
	if strings.EqualFold(img.AttrOr("loading", ""), "lazy") {
		return true
	}
	if _, ok := img.Attr("data-src"); ok {
		return true
	}
	if _, ok := img.Attr("data-srcset"); ok {
		return true
	}
	return strings.Contains(strings.ToLower(img.AttrOr("class", "")), "lazy")
}

func hasStructuredReviews(d *Document) bool {
	for _, p := range d.products {
		if _, ok := p["aggregateRating"]; ok {
			return true
		}
		if _, ok := p["review"]; ok {
			return true
		}
	}
	return false
}

func trustNearCTA(d *Document, cta *goquery.Selection) bool {
	if cta == nil || cta.Length() == 0 {
		return false
	}
	scope := cta
	for i := 0; i < ctaNeighborhood; i++ {
		parent := scope.Parent()
		if parent.Length() == 0 || goquery.NodeName(parent) == "body" {
			break
		}
		scope = parent
	}
	if scope.Find(trustSelector).Length() > 0 {
		return true
	}
	if containsAny(strings.ToLower(collapse(scope.Text())), d.registry.Keywords.Trust) {
		return true
	}
	found := false
	scope.Find("img, svg").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		hint := strings.ToLower(s.AttrOr("alt", "") + " " + s.AttrOr("src", "") + " " + s.AttrOr("aria-label", "") + " " + s.AttrOr("class", ""))
		found = containsAny(hint, d.registry.Keywords.Trust)
		return !found
	})
	return found
}

// aboveFoldNoise counts outermost promotional and interruptive elements.
func aboveFoldNoise(d *Document) int {
	count := 0
	d.doc.Find(noiseSelector).Each(func(_ int, s *goquery.Selection) {
		if s.ParentsFiltered(noiseSelector).Length() == 0 {
			count++
		}
	})
	return count
}
