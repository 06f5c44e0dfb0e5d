// Package urlpath pulls typed values out of chi route parameters.
package urlpath

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/clubhouse/prizepayout/he"
)

// Year parses the "year" route parameter.  Errors carry a 400.
func Year(r *http.Request) (int, error) {
	raw := chi.URLParam(r, "year")
	year, err := strconv.Atoi(raw)
	if err != nil || year < 1900 || year > 9999 {
		return 0, he.HTTPCodedErrorf(http.StatusBadRequest, "bad year %q", raw)
	}
	return year, nil
}

// CompetitionID returns the "id" route parameter, trimmed.  Whether it's a
// valid id is up to the caller.
func CompetitionID(r *http.Request) string {
	return strings.TrimSpace(chi.URLParam(r, "id"))
}
