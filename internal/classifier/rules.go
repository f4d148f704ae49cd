package classifier

import "basegraph.app/forge/internal/model"

// DefaultRules is the shipped rule set. Order matters: earlier rules win
// score ties.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:           "bugfix",
			Weight:         2.0,
			Keywords:       []string{"bug", "fix", "broken", "crash", "error", "regression", "panic"},
			PathGlobs:      nil,
			Category:       model.CategoryFix,
			Specialization: model.SpecializationBackend,
		},
		{
			Name:           "testing",
			Weight:         1.5,
			Keywords:       []string{"test", "coverage", "flaky", "assertion", "spec"},
			PathGlobs:      []string{"*_test.go", "*.test.ts", "*.spec.ts", "tests/*"},
			Category:       model.CategoryTesting,
			Specialization: model.SpecializationTesting,
		},
		{
			Name:           "documentation",
			Weight:         1.5,
			Keywords:       []string{"docs", "documentation", "readme", "changelog", "comment"},
			PathGlobs:      []string{"*.md", "docs/*"},
			Category:       model.CategoryDocumentation,
			Specialization: model.SpecializationDocumentation,
		},
		{
			Name:           "frontend",
			Weight:         1.0,
			Keywords:       []string{"ui", "frontend", "css", "layout", "component", "styling", "button"},
			PathGlobs:      []string{"*.tsx", "*.jsx", "*.vue", "*.css", "*.scss"},
			Category:       model.CategoryGeneration,
			Specialization: model.SpecializationFrontend,
		},
		{
			Name:           "backend",
			Weight:         1.0,
			Keywords:       []string{"api", "endpoint", "database", "migration", "backend", "service", "handler"},
			PathGlobs:      []string{"*.go", "*.sql"},
			Category:       model.CategoryGeneration,
			Specialization: model.SpecializationBackend,
		},
		{
			Name:           "review",
			Weight:         1.0,
			Keywords:       []string{"review", "refactor", "cleanup", "simplify", "tech debt"},
			PathGlobs:      nil,
			Category:       model.CategoryReview,
			Specialization: model.SpecializationBackend,
		},
	}
}
