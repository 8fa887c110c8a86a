package catalog

import (
	"fmt"
	"strings"
)

// Category distinguishes solo and group events.
type Category string

const (
	CategorySolo  Category = "solo"
	CategoryGroup Category = "group"
)

// EventDefinition describes one festival event. The catalog is immutable and
// loaded once at package init.
type EventDefinition struct {
	Name            string
	Aliases         []string
	Category        Category
	MinParticipants int
	MaxParticipants int
	IsException     bool
	Tagline         string
}

// UnknownEventError reports a lookup miss. Normalization fails closed: an
// unmatched name is never passed through as-is.
type UnknownEventError struct {
	Raw string
}

func (e *UnknownEventError) Error() string {
	return fmt.Sprintf("unknown event %q", e.Raw)
}

var definitions = []EventDefinition{
	{
		Name:            "Solo Singing",
		Aliases:         []string{"singing", "solo song", "vocal solo"},
		Category:        CategorySolo,
		MinParticipants: 1,
		MaxParticipants: 1,
		Tagline:         "One voice, one stage",
	},
	{
		Name:            "Solo Dance",
		Aliases:         []string{"dance solo", "solo dancing"},
		Category:        CategorySolo,
		MinParticipants: 1,
		MaxParticipants: 1,
		Tagline:         "Own the floor",
	},
	{
		Name:            "Quiz",
		Aliases:         []string{"quiz competition", "general quiz"},
		Category:        CategoryGroup,
		MinParticipants: 2,
		MaxParticipants: 2,
		Tagline:         "Two heads, every answer",
	},
	{
		Name:            "Debate",
		Aliases:         []string{"debating", "parliamentary debate"},
		Category:        CategoryGroup,
		MinParticipants: 2,
		MaxParticipants: 2,
		Tagline:         "Argue it out",
	},
	{
		Name:            "Photography",
		Aliases:         []string{"photo", "photo contest"},
		Category:        CategorySolo,
		MinParticipants: 1,
		MaxParticipants: 1,
		Tagline:         "Frame the fest",
	},
	{
		Name:            "Painting",
		Aliases:         []string{"art", "canvas painting"},
		Category:        CategorySolo,
		MinParticipants: 1,
		MaxParticipants: 1,
		Tagline:         "Colors speak",
	},
	{
		Name:            "Group Dance",
		Aliases:         []string{"team dance", "dance group"},
		Category:        CategoryGroup,
		MinParticipants: 4,
		MaxParticipants: 8,
		IsException:     true,
		Tagline:         "Move as one",
	},
	{
		Name:            "Cricket",
		Aliases:         []string{"cricket tournament", "box cricket"},
		Category:        CategoryGroup,
		MinParticipants: 11,
		MaxParticipants: 15,
		IsException:     true,
		Tagline:         "Play the long game",
	},
	{
		Name:            "Drama",
		Aliases:         []string{"stage play", "street play", "theatre"},
		Category:        CategoryGroup,
		MinParticipants: 5,
		MaxParticipants: 10,
		IsException:     true,
		Tagline:         "All the fest's a stage",
	},
}

var index = buildIndex()

func buildIndex() map[string]*EventDefinition {
	idx := make(map[string]*EventDefinition)
	for i := range definitions {
		def := &definitions[i]
		idx[fold(def.Name)] = def
		for _, alias := range def.Aliases {
			idx[fold(alias)] = def
		}
	}
	return idx
}

// fold reduces a raw name to its lookup key: lower case, alphanumerics only.
func fold(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Normalize resolves a raw event name to its canonical form. The lookup is
// case-insensitive and tolerant of aliases, spacing and punctuation; anything
// unmatched yields an UnknownEventError.
func Normalize(raw string) (string, error) {
	key := fold(raw)
	if key == "" {
		return "", &UnknownEventError{Raw: raw}
	}
	if def, ok := index[key]; ok {
		return def.Name, nil
	}
	return "", &UnknownEventError{Raw: raw}
}

// Get returns the definition for a canonical name.
func Get(canonical string) (*EventDefinition, bool) {
	def, ok := index[fold(canonical)]
	if !ok {
		return nil, false
	}
	// Only a canonical name counts as a hit here; aliases go through Normalize.
	if def.Name != canonical {
		return nil, false
	}
	return def, true
}

// All returns the full catalog in declaration order.
func All() []EventDefinition {
	out := make([]EventDefinition, len(definitions))
	copy(out, definitions)
	return out
}
