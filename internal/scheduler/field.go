package scheduler

import (
	"strings"
	"unicode"

	"github.com/astroward/nightwatch/internal/astro"
)

// Field is a named sky position that can be targeted for observation.
// Immutable after construction.
type Field struct {
	// Name is the display name, e.g. "M 42" or "KIC 8462852".
	Name string

	// Position is the parsed equatorial coordinate of the field center.
	Position astro.Equatorial

	fieldName string
}

// NewField validates and builds a Field from a name and a position string
// (sexagesimal or decimal degrees; see astro.ParseCoordinates).
func NewField(name, position string) (*Field, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return nil, validationErrorf("name", "must not be empty")
	}

	pos, err := astro.ParseCoordinates(position)
	if err != nil {
		return nil, validationErrorf("position", "%v", err)
	}

	sanitized := sanitizeFieldName(trimmed)
	if sanitized == "" {
		return nil, validationErrorf("name", "%q has no path-safe characters", name)
	}

	return &Field{Name: trimmed, Position: pos, fieldName: sanitized}, nil
}

// FieldName is the flattened, path-safe form of the name used for image
// directories: title-cased with spaces, dashes and any character unsafe in
// a path removed.
func (f *Field) FieldName() string {
	return f.fieldName
}

func (f *Field) String() string {
	return f.Name
}

func sanitizeFieldName(name string) string {
	var b strings.Builder
	upperNext := true
	for _, r := range name {
		switch {
		case unicode.IsLetter(r):
			if upperNext {
				r = unicode.ToUpper(r)
				upperNext = false
			} else {
				r = unicode.ToLower(r)
			}
			b.WriteRune(r)
		case unicode.IsDigit(r):
			b.WriteRune(r)
			upperNext = false
		default:
			// Separators drop out and capitalize what follows.
			upperNext = true
		}
	}
	return b.String()
}
