// Package errs owns the translation of domain errors into transport
// responses. Handlers never inspect error text: the status comes from the
// error's kind through a single dispatch table.
package errs

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/repoguard/repoguard/internal/domain/scanning"
)

// Response is the JSON error envelope returned to callers.
type Response struct {
	Error   string     `json:"error"`
	Kind    string     `json:"kind"`
	ResetAt *time.Time `json:"resetAt,omitempty"`
}

// statusFor is the only place error kinds map to HTTP status codes.
var statusFor = map[scanning.ErrorKind]int{
	scanning.KindInput:               http.StatusBadRequest,
	scanning.KindAccess:              http.StatusNotFound,
	scanning.KindQuotaExceeded:       http.StatusTooManyRequests,
	scanning.KindUpstreamRateLimited: http.StatusTooManyRequests,
	scanning.KindUpstreamUnavailable: http.StatusBadGateway,
	scanning.KindEngine:              http.StatusInternalServerError,
	scanning.KindUnknown:             http.StatusInternalServerError,
}

// Status returns the HTTP status for err's kind.
func Status(err error) int {
	if s, ok := statusFor[scanning.KindOf(err)]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// Respond writes the JSON error envelope for err. Kinds that carry internal
// detail (engine failures, unclassified errors) get a generic message so
// internals never leak to callers.
func Respond(w http.ResponseWriter, err error) {
	kind := scanning.KindOf(err)

	resp := Response{Error: publicMessage(kind, err), Kind: kind.String()}
	if resetAt := scanning.ResetAtOf(err); !resetAt.IsZero() {
		resp.ResetAt = &resetAt
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(Status(err))
	_ = json.NewEncoder(w).Encode(resp)
}

func publicMessage(kind scanning.ErrorKind, err error) string {
	switch kind {
	case scanning.KindInput,
		scanning.KindAccess,
		scanning.KindQuotaExceeded,
		scanning.KindUpstreamRateLimited,
		scanning.KindUpstreamUnavailable:
		return err.Error()
	default:
		return "internal error"
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Check validates a request payload against its struct tags. A failure is
// returned as an input-kind error so it maps to 400.
func Check(v any) error {
	if err := validate.Struct(v); err != nil {
		return scanning.WrapError(scanning.KindInput, err, "invalid request")
	}
	return nil
}
