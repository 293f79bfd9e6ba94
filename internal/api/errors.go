package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"qline/internal/jobs"
	"qline/internal/lifecycle"
	"qline/internal/qlid"
)

// HTTPStatus maps a service error onto an HTTP status code. Unknown errors
// are internal; validation failures from the service layer fall through to
// 400 via the handler's default.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, jobs.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, jobs.ErrStaleState):
		return http.StatusConflict
	case errors.Is(err, jobs.ErrAlreadyResolved),
		errors.Is(err, jobs.ErrAlreadyRevoked):
		return http.StatusConflict
	case errors.Is(err, lifecycle.ErrIllegalTransition),
		errors.Is(err, lifecycle.ErrAttemptLimit),
		errors.Is(err, lifecycle.ErrRepairsUnresolved),
		errors.Is(err, jobs.ErrNotEligible):
		return http.StatusUnprocessableEntity
	case errors.Is(err, qlid.ErrInvalidFormat):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// encodeOpt renders a value as JSON, mapping empty collections to "".
func encodeOpt(value any) (string, error) {
	switch v := value.(type) {
	case nil:
		return "", nil
	case map[string]bool:
		if len(v) == 0 {
			return "", nil
		}
	case map[string]any:
		if len(v) == 0 {
			return "", nil
		}
	case []string:
		if len(v) == 0 {
			return "", nil
		}
	}
	data, err := json.Marshal(value)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
