package handlers

import (
	"encoding/json"

	"github.com/danielgtaylor/huma/v2"
	"github.com/gdg-garage/observe-api/internal/apperr"
)

// httpError maps a core error onto a status. Unclassified errors never leak
// their message.
func httpError(err error) error {
	switch {
	case apperr.Validation.Has(err):
		return huma.Error400BadRequest(err.Error())
	case apperr.NotFound.Has(err):
		return huma.Error404NotFound(err.Error())
	case apperr.Conflict.Has(err):
		return huma.Error409Conflict(err.Error())
	default:
		return huma.Error500InternalServerError("Unexpected error.")
	}
}

// rawJSON re-encodes a decoded body field for the core, which takes raw JSON.
func rawJSON(v interface{}) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, apperr.Validation.Wrap(err)
	}
	return b, nil
}
