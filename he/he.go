// Package he carries HTTP status codes on errors.
package he

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"
)

// HTTPError probably represents the wrong abstraction.
type HTTPError struct {
	code int
	err  error
}

func HTTPCodedErrorf(code int, f string, more ...any) *HTTPError {
	return &HTTPError{
		code: code,
		err:  fmt.Errorf(f, more...),
	}
}

func New(code int, err error) *HTTPError {
	return &HTTPError{
		code: code,
		err:  err,
	}
}

func (e *HTTPError) Error() string {
	return e.err.Error()
}

func (e *HTTPError) Unwrap() error {
	return e.err
}

func (e *HTTPError) Code() int {
	return e.code
}

// Code is the status err should be reported with: the code of the first
// HTTPError in its chain, else 500.
func Code(err error) int {
	var he *HTTPError
	if errors.As(err, &he) {
		return he.code
	}
	return http.StatusInternalServerError
}

type errorBody struct {
	Error string `json:"error"`
}

// SendErrorToHTTPClient sends err as a JSON error.  If there's an HTTPError
// in the chain we can include a better response code; otherwise, client gets
// 500 and it's on us.
func SendErrorToHTTPClient(w http.ResponseWriter, log *zap.Logger, while string, err error) {
	code := Code(err)
	txt := fmt.Sprintf("can't %s: %v", while, err)
	if code >= 500 {
		log.Error(txt, zap.Int("status", code))
	} else {
		log.Info(txt, zap.Int("status", code))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(errorBody{Error: txt})
}
