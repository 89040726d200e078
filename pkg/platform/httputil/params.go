package httputil

import (
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	dErrors "dab/pkg/domain-errors"
)

// PathParam returns the chi URL parameter key decoded exactly once. chi
// routes on r.URL.RawPath when it is set, so the parameter is still escaped
// then; otherwise it comes from the already decoded r.URL.Path.
func PathParam(r *http.Request, key string) (string, error) {
	raw := chi.URLParam(r, key)
	if r.URL.RawPath == "" {
		return raw, nil
	}
	value, err := url.PathUnescape(raw)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid "+key+" in path")
	}
	return value, nil
}
