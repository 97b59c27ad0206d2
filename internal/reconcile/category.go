package reconcile

import (
	"strings"

	"github.com/crewledger/crewledger/internal/model"
)

// FallbackCategoryName is the catch-all category a record lands in when
// neither the extraction suggestion nor the vendor heuristics resolve one.
const FallbackCategoryName = "Other"

// Vendor-name substrings mapped to category names. Checked in order; the
// first category whose keyword list matches wins.
var vendorKeywords = []struct {
	category string
	keywords []string
}{
	{"Fuel", []string{
		"gas", "fuel", "shell", "chevron", "bp", "exxon", "mobil", "circle k",
		"wawa", "racetrac", "speedway", "sunoco", "murphy", "qt", "quiktrip",
		"citgo", "valero", "marathon",
	}},
	{"Materials", []string{
		"home depot", "lowe", "menard", "ace hardware", "84 lumber",
		"abc supply", "beacon", "srs", "build",
	}},
	{"Food & Drinks", []string{
		"mcdonald", "burger", "subway", "wendy", "chick-fil", "taco bell",
		"pizza", "restaurant", "diner", "cafe", "publix", "walmart",
		"dollar general", "dollar tree", "convenience",
	}},
	{"Safety Gear", []string{"safety", "grainger", "fastenal"}},
	{"Lodging", []string{"hotel", "motel", "inn", "suites", "lodge", "airbnb", "extended stay"}},
}

// ResolveCategory applies the resolution cascade, first hit wins:
//  1. fuzzy-match the extraction's suggestion against active categories,
//  2. vendor-name keyword heuristics,
//  3. the designated fallback category.
//
// Returns nil only when even the fallback category is absent from the list.
// Category is resolved once per record; line items are not categorized here.
func ResolveCategory(suggestion, vendor string, categories []*model.Category, threshold int) *model.Category {
	if c := matchSuggestion(suggestion, categories, threshold); c != nil {
		return c
	}
	if c := matchVendor(vendor, categories); c != nil {
		return c
	}
	return byName(FallbackCategoryName, categories)
}

func matchSuggestion(suggestion string, categories []*model.Category, threshold int) *model.Category {
	suggestion = strings.TrimSpace(suggestion)
	if suggestion == "" {
		return nil
	}
	var best *model.Category
	bestScore := 0
	for _, c := range categories {
		if score := Similarity(suggestion, c.Name); score > bestScore {
			bestScore = score
			best = c
		}
	}
	if best != nil && bestScore >= threshold {
		return best
	}
	return nil
}

func matchVendor(vendor string, categories []*model.Category) *model.Category {
	lower := strings.ToLower(strings.TrimSpace(vendor))
	if lower == "" {
		return nil
	}
	for _, group := range vendorKeywords {
		for _, kw := range group.keywords {
			if strings.Contains(lower, kw) {
				return byName(group.category, categories)
			}
		}
	}
	return nil
}

func byName(name string, categories []*model.Category) *model.Category {
	for _, c := range categories {
		if strings.EqualFold(c.Name, name) {
			return c
		}
	}
	return nil
}
