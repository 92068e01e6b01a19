package handlers

import (
	"net/http"

	apperrors "github.com/3leaps/spoolwatch/internal/errors"
)

// HTTPErrorResponder writes err to w.
type HTTPErrorResponder func(w http.ResponseWriter, r *http.Request, err error)

var httpErrorResponder HTTPErrorResponder = apperrors.RespondWithError

// SetHTTPErrorResponder replaces the error writer used by every handler.
// nil restores the default envelope writer.
func SetHTTPErrorResponder(fn HTTPErrorResponder) {
	if fn == nil {
		fn = apperrors.RespondWithError
	}
	httpErrorResponder = fn
}

func ResetHTTPErrorResponder() {
	httpErrorResponder = apperrors.RespondWithError
}

func respondWithError(w http.ResponseWriter, r *http.Request, err error) {
	httpErrorResponder(w, r, err)
}
