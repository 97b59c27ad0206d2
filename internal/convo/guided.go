package convo

import (
	"regexp"
	"strings"
)

// MissedDetails are the four fields the guided missed-receipt flow asks for.
// Fields the worker did not supply stay nil; the record is flagged either way.
type MissedDetails struct {
	Store   *string `json:"store,omitempty"`
	Amount  *string `json:"amount,omitempty"`
	Items   *string `json:"items,omitempty"`
	Project *string `json:"project,omitempty"`
}

var (
	amountRe = regexp.MustCompile(`\$?\d+(?:\.\d{1,2})?`)
	labelRe  = regexp.MustCompile(`(?i)^(store|vendor|amount|total|items?|project)\s*[:\-]\s*(.+)$`)
)

// ParseMissedDetails parses a guided-flow reply, best effort. Labeled lines
// ("store: RaceTrac") win; otherwise segments split on newlines or commas are
// assigned positionally (store, amount, items, project), with any segment
// that looks like a dollar amount claiming the amount slot.
func ParseMissedDetails(body string) MissedDetails {
	var out MissedDetails

	segments := splitSegments(body)
	var positional []string
	for _, seg := range segments {
		if m := labelRe.FindStringSubmatch(seg); m != nil {
			val := strings.TrimSpace(m[2])
			if val == "" {
				continue
			}
			switch strings.ToLower(m[1]) {
			case "store", "vendor":
				out.Store = &val
			case "amount", "total":
				out.Amount = &val
			case "item", "items":
				out.Items = &val
			case "project":
				out.Project = &val
			}
			continue
		}
		positional = append(positional, seg)
	}

	for _, seg := range positional {
		switch {
		case out.Amount == nil && amountRe.MatchString(seg) && len(seg) <= 12:
			val := seg
			out.Amount = &val
		case out.Store == nil:
			val := seg
			out.Store = &val
		case out.Items == nil:
			val := seg
			out.Items = &val
		case out.Project == nil:
			val := seg
			out.Project = &val
		}
	}
	return out
}

func splitSegments(body string) []string {
	var out []string
	for _, line := range strings.Split(body, "\n") {
		for _, seg := range strings.Split(line, ",") {
			seg = strings.TrimSpace(seg)
			if seg != "" {
				out = append(out, seg)
			}
		}
	}
	return out
}
