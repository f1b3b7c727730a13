package entity

// FilterMode selects how FilterSpec.Keywords are applied to an article.
type FilterMode string

const (
	// FilterAll passes every article through unfiltered.
	FilterAll FilterMode = "all"
	// FilterInclude admits only articles matching at least MinMatches keywords.
	FilterInclude FilterMode = "include"
	// FilterExclude drops any article matching at least one keyword.
	FilterExclude FilterMode = "exclude"
	// FilterPriority behaves like FilterAll but tags articles matching
	// PriorityKeywords so the dispatcher can mark the post urgent.
	FilterPriority FilterMode = "priority"
)

// Field names a searchable article field.
type Field string

const (
	FieldTitle       Field = "title"
	FieldDescription Field = "description"
	FieldContent     Field = "content"
)

// FilterSpec is a pure value describing how a recipient (or one of its
// per-feed routes) wants articles screened before posting.
type FilterSpec struct {
	Mode             FilterMode
	Keywords         []string
	Fields           []Field
	CaseSensitive    bool
	MinMatches       int
	PriorityKeywords []string
}

// EffectiveMinMatches returns MinMatches with its documented default of 1
// applied when unset.
func (f FilterSpec) EffectiveMinMatches() int {
	if f.MinMatches <= 0 {
		return 1
	}
	return f.MinMatches
}

// EffectiveFields returns Fields with its documented default of
// {title, description} applied when unset.
func (f FilterSpec) EffectiveFields() []Field {
	if len(f.Fields) == 0 {
		return []Field{FieldTitle, FieldDescription}
	}
	return f.Fields
}
