package osmobjects

import (
	"strings"
	"unicode"

	"github.com/gdg-garage/observe-api/internal/apperr"
)

// textMatch builds the full-text condition for the dialect. Both dialects
// match the string values of the attributes only, never their keys.
// Postgres matches prefixes of every term against the tsvector of those
// values, the same expression the GIN index is built on. sqlite walks the
// attribute document with json_tree and requires a case-insensitive
// substring match of every term in some string value.
func textMatch(dialect, text string) (string, []interface{}, error) {
	terms := searchTerms(text)
	if len(terms) == 0 {
		return "", nil, apperr.Validation.New("search text %q has no searchable terms", text)
	}

	if dialect == "postgres" {
		prefixes := make([]string, len(terms))
		for i, t := range terms {
			prefixes[i] = t + ":*"
		}
		return `jsonb_to_tsvector('english', osm_objects.attributes::jsonb, '["string"]') @@ to_tsquery('english', ?)`,
			[]interface{}{strings.Join(prefixes, " & ")}, nil
	}

	conds := make([]string, len(terms))
	args := make([]interface{}, len(terms))
	for i, t := range terms {
		conds[i] = stringValueLike
		args[i] = "%" + t + "%"
	}
	return strings.Join(conds, " AND "), args, nil
}

const stringValueLike = `EXISTS (SELECT 1 FROM json_tree(osm_objects.attributes) AS attr
	WHERE attr.type = 'text' AND LOWER(attr.value) LIKE ?)`

// searchTerms lowercases text and splits it into letter/digit runs, which
// also strips tsquery operators and LIKE wildcards.
func searchTerms(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
