// Package filter implements the keyword FilterEngine: given an article
// and a FilterSpec it decides inclusion and reports which terms matched.
// Keyword matching supports the same glob wildcards (*, ?) as the
// reference keyword filter, compiled once per spec into regular
// expressions for repeated use across a dispatch tick.
package filter

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"rss-media-bus/internal/domain/entity"
)

// Engine compiles and applies FilterSpec values. It caches compiled
// matchers per distinct spec so a recipient's filter is compiled once
// across a process lifetime rather than on every article.
type Engine struct {
	mu    sync.Mutex
	cache map[string]*compiledSpec
}

// New builds an Engine ready for concurrent use.
func New() *Engine {
	return &Engine{cache: make(map[string]*compiledSpec)}
}

type compiledSpec struct {
	patterns         []*regexp.Regexp
	keywords         []string
	priorityPatterns []*regexp.Regexp
	priorityKeywords []string
}

// Apply decides whether article should be delivered under spec, and
// which keywords matched. The reason string is meant for structured
// logs, not end-user display.
func (e *Engine) Apply(article *entity.Article, spec entity.FilterSpec) (include bool, matched []string, reason string) {
	text := extractText(article, spec.EffectiveFields())
	if !spec.CaseSensitive {
		text = strings.ToLower(text)
	}

	cs := e.compiled(spec)

	switch spec.Mode {
	case entity.FilterInclude:
		matched = findMatches(text, cs.patterns, cs.keywords)
		if len(matched) >= spec.EffectiveMinMatches() {
			return true, matched, fmt.Sprintf("matched %d of %d required: %s", len(matched), spec.EffectiveMinMatches(), strings.Join(matched, ", "))
		}
		return false, matched, fmt.Sprintf("insufficient matches: %d < %d", len(matched), spec.EffectiveMinMatches())

	case entity.FilterExclude:
		matched = findMatches(text, cs.patterns, cs.keywords)
		if len(matched) > 0 {
			return false, matched, fmt.Sprintf("excluded by: %s", strings.Join(matched, ", "))
		}
		return true, nil, "no excluded terms present"

	case entity.FilterPriority:
		priorityMatched := findMatches(text, cs.priorityPatterns, cs.priorityKeywords)
		if len(priorityMatched) > 0 {
			return true, priorityMatched, fmt.Sprintf("priority match: %s", strings.Join(priorityMatched, ", "))
		}
		return true, nil, "no priority terms matched"

	case entity.FilterAll, "":
		return true, nil, "unfiltered"

	default:
		return true, nil, "unknown filter mode, defaulting to unfiltered"
	}
}

func extractText(article *entity.Article, fields []entity.Field) string {
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		switch f {
		case entity.FieldTitle:
			parts = append(parts, article.Title)
		case entity.FieldDescription:
			parts = append(parts, article.Description)
		case entity.FieldContent:
			parts = append(parts, article.Content)
		}
	}
	return strings.Join(parts, " ")
}

func findMatches(text string, patterns []*regexp.Regexp, keywords []string) []string {
	var matched []string
	for i, p := range patterns {
		if p.MatchString(text) {
			matched = append(matched, keywords[i])
		}
	}
	return matched
}

func (e *Engine) compiled(spec entity.FilterSpec) *compiledSpec {
	key := cacheKey(spec)

	e.mu.Lock()
	defer e.mu.Unlock()
	if cs, ok := e.cache[key]; ok {
		return cs
	}

	cs := &compiledSpec{
		patterns:         compilePatterns(spec.Keywords, spec.CaseSensitive),
		keywords:         spec.Keywords,
		priorityPatterns: compilePatterns(spec.PriorityKeywords, spec.CaseSensitive),
		priorityKeywords: spec.PriorityKeywords,
	}
	e.cache[key] = cs
	return cs
}

func cacheKey(spec entity.FilterSpec) string {
	return fmt.Sprintf("%s|%v|%v|%v", spec.Mode, spec.Keywords, spec.PriorityKeywords, spec.CaseSensitive)
}

// compilePatterns mirrors the reference matcher: a keyword containing *
// or ? is compiled as a wildcard glob (* -> .*, ? -> .); a plain keyword
// matches on word boundaries, where letters and digits of any script
// count as word characters.
func compilePatterns(keywords []string, caseSensitive bool) []*regexp.Regexp {
	patterns := make([]*regexp.Regexp, 0, len(keywords))
	for _, kw := range keywords {
		var raw string
		if strings.ContainsAny(kw, "*?") {
			raw = globToRegex(kw)
		} else {
			raw = `(?:^|[^\p{L}\p{N}_])` + regexp.QuoteMeta(kw) + `(?:$|[^\p{L}\p{N}_])`
		}
		if !caseSensitive {
			raw = "(?i)" + raw
		}
		patterns = append(patterns, regexp.MustCompile(raw))
	}
	return patterns
}

// globToRegex escapes every rune except the glob wildcards * and ?,
// which translate to .* and . respectively.
func globToRegex(kw string) string {
	var b strings.Builder
	for _, r := range kw {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	return b.String()
}
