// Package reconcile matches free-text captions and extraction hints against
// the reference lists (projects, spend categories).
package reconcile

import (
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/crewledger/crewledger/internal/model"
)

// Similarity returns a 0-100 ratio between two strings, case-insensitive.
// 100 means identical after trimming and lowercasing.
func Similarity(a, b string) int {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == b {
		return 100
	}
	longest := len([]rune(a))
	if n := len([]rune(b)); n > longest {
		longest = n
	}
	if longest == 0 {
		return 100
	}
	dist := levenshtein.ComputeDistance(a, b)
	return (longest - dist) * 100 / longest
}

// ProjectMatch is the outcome of matching a caption against active projects.
// Project is nil when no candidate reached the threshold; Score then holds
// the best score seen, which may be useful in review.
type ProjectMatch struct {
	Project *model.Project
	Caption string
	Score   int
}

// MatchProject resolves a worker-supplied caption against active projects.
// Exact case-insensitive hits win outright; otherwise the highest-scoring
// candidate at or above threshold is accepted silently. Low-confidence
// matches are left unresolved rather than bounced back to the worker.
func MatchProject(caption string, projects []*model.Project, threshold int) ProjectMatch {
	out := ProjectMatch{Caption: strings.TrimSpace(caption)}
	if out.Caption == "" {
		return out
	}

	for _, p := range projects {
		if strings.EqualFold(out.Caption, p.Name) {
			out.Project = p
			out.Score = 100
			return out
		}
	}

	var best *model.Project
	bestScore := 0
	for _, p := range projects {
		if score := Similarity(out.Caption, p.Name); score > bestScore {
			bestScore = score
			best = p
		}
	}
	out.Score = bestScore
	if best != nil && bestScore >= threshold {
		out.Project = best
	}
	return out
}
