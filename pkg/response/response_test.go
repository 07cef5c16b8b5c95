package response

import (
	"fmt"
	"net/http"
	"testing"

	"CareFollow/pkg/errors"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantDef  string
	}{
		{"validation", errors.Invalid("patient_id is required"), http.StatusBadRequest, "VALIDATION_ERROR"},
		{"gateway validation", fmt.Errorf("push: %w", errors.RecipientMissing), http.StatusBadRequest, "RECIPIENT_MISSING"},
		{"unauthorized", errors.Unauthorized, http.StatusUnauthorized, "UNAUTHORIZED"},
		{"rate limited", errors.TooManyRequests, http.StatusTooManyRequests, "TOO_MANY_REQUESTS"},
		{"store down", errors.Unavailable("scan reminders", fmt.Errorf("dial tcp: connection refused")), http.StatusServiceUnavailable, "STORE_UNAVAILABLE"},
		{"breaker open", fmt.Errorf("%w: reminder-store", errors.ErrBreakerOpen), http.StatusServiceUnavailable, "STORE_UNAVAILABLE"},
		{"mq down", errors.ErrMQConnectionNil, http.StatusServiceUnavailable, "STORE_UNAVAILABLE"},
		{"unknown", fmt.Errorf("pq: relation does not exist"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, def := resolve(tt.err)
			if code != tt.wantCode {
				t.Errorf("status = %d, want %d", code, tt.wantCode)
			}
			if def.Code != tt.wantDef {
				t.Errorf("code = %s, want %s", def.Code, tt.wantDef)
			}
		})
	}
}

func TestResolveHidesInternalDetails(t *testing.T) {
	_, def := resolve(errors.Unavailable("scan reminders", fmt.Errorf("password authentication failed for user postgres")))
	if def.Message != errors.StoreUnavailable.Message {
		t.Errorf("message = %q, want %q", def.Message, errors.StoreUnavailable.Message)
	}

	_, def = resolve(fmt.Errorf("pq: relation \"reminder_records\" does not exist"))
	if def.Message != internalError.Message {
		t.Errorf("message = %q, want %q", def.Message, internalError.Message)
	}
}
