package he

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestCode(t *testing.T) {
	notFound := New(http.StatusNotFound, errors.New("no such competition"))
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"plain", errors.New("boom"), 500},
		{"coded", HTTPCodedErrorf(400, "bad id %q", "x"), 400},
		{"wrapped", fmt.Errorf("load: %w", notFound), 404},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Code(tt.err); got != tt.want {
				t.Errorf("Code = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestUnwrapKeepsSentinels(t *testing.T) {
	sentinel := errors.New("sentinel")
	err := New(400, fmt.Errorf("context: %w", sentinel))
	if !errors.Is(err, sentinel) {
		t.Error("errors.Is lost the sentinel")
	}
}

func TestSendErrorToHTTPClient(t *testing.T) {
	rec := httptest.NewRecorder()
	SendErrorToHTTPClient(rec, zap.NewNop(), "load payouts", New(404, errors.New("nothing for 4711")))

	if rec.Code != 404 {
		t.Errorf("status = %d, want 404", rec.Code)
	}
	var body errorBody
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(body.Error, "can't load payouts") || !strings.Contains(body.Error, "4711") {
		t.Errorf("body = %q", body.Error)
	}
}
