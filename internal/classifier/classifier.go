package classifier

import (
	"path"
	"strings"

	"basegraph.app/forge/internal/model"
)

// Rule is one weighted classification rule. Rules are static configuration,
// evaluated read-only at classification time.
type Rule struct {
	Name           string
	Weight         float64
	Keywords       []string
	PathGlobs      []string
	Category       model.TaskCategory
	Specialization model.Specialization
}

// Classification is the outcome of rule evaluation: the work category and
// the preferred agent specialization.
type Classification struct {
	Category       model.TaskCategory
	Specialization model.Specialization
}

// Classifier scores issue text and file-path hints against an ordered rule
// set. Classification is pure: identical inputs always yield the identical
// result.
type Classifier struct {
	rules []Rule
}

func New(rules []Rule) *Classifier {
	return &Classifier{rules: rules}
}

// Classify accumulates, per rule, the rule weight once per distinct keyword
// found as a case-insensitive substring of "title body", and once per file
// path matching any of the rule's globs. The highest-scoring rule wins; ties
// resolve to the earliest rule in configuration order. A zero score falls
// back to the general-purpose specialization.
func (c *Classifier) Classify(title, body string, filePaths []string) Classification {
	haystack := strings.ToLower(title + " " + body)

	bestScore := 0.0
	bestIdx := -1

	for i, rule := range c.rules {
		score := 0.0

		for _, keyword := range rule.Keywords {
			if strings.Contains(haystack, strings.ToLower(keyword)) {
				score += rule.Weight
			}
		}

		for _, filePath := range filePaths {
			if matchesAnyGlob(rule.PathGlobs, filePath) {
				score += rule.Weight
			}
		}

		// Strictly greater keeps the first rule on ties.
		if score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}

	if bestIdx == -1 {
		return Classification{
			Category:       model.CategoryGeneration,
			Specialization: model.SpecializationGeneral,
		}
	}

	return Classification{
		Category:       c.rules[bestIdx].Category,
		Specialization: c.rules[bestIdx].Specialization,
	}
}

// matchesAnyGlob matches the full path first, then the base name, so that
// patterns like "*.sql" hit files in nested directories.
func matchesAnyGlob(globs []string, filePath string) bool {
	for _, glob := range globs {
		if ok, err := path.Match(glob, filePath); err == nil && ok {
			return true
		}
		if ok, err := path.Match(glob, path.Base(filePath)); err == nil && ok {
			return true
		}
	}
	return false
}

// PriorityFromLabels extracts a task priority from issue labels of the form
// "priority::high" (or "priority:high"). Unlabeled issues default to medium.
func PriorityFromLabels(labels []string) model.TaskPriority {
	for _, label := range labels {
		normalized := strings.ToLower(strings.TrimSpace(label))
		var value string
		switch {
		case strings.HasPrefix(normalized, "priority::"):
			value = strings.TrimPrefix(normalized, "priority::")
		case strings.HasPrefix(normalized, "priority:"):
			value = strings.TrimPrefix(normalized, "priority:")
		default:
			continue
		}
		if priority := model.TaskPriority(value); priority.Valid() {
			return priority
		}
	}
	return model.PriorityMedium
}
