package api

import (
	"github.com/google/uuid"
)

// newRequestID mints a fresh run identifier for callers that submit a
// task without naming one themselves.
func newRequestID() string {
	return uuid.NewString()
}

// codeToStatus maps the spec §7 failure-code taxonomy a FailureReport
// carries to an HTTP status, the same job the teacher's mapServiceError
// does for its own error taxonomy.
func codeToStatus(code string) int {
	switch code {
	case "UnknownIntent", "UnknownQuery", "ParamValidation":
		return 400
	case "Cancelled":
		return 499
	case "StageTimeout":
		return 504
	case "ResultTooLarge":
		return 413
	case "BackendFailure":
		return 502
	case "VerificationFailed":
		return 422
	default:
		return 500
	}
}
