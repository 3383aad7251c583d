package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arcline-io/arcline-accounts/internal/shared"
)

func respond(t *testing.T, err error) (int, ProblemDetail) {
	t.Helper()
	rec := httptest.NewRecorder()
	RespondError(rec, err)
	var problem ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	return rec.Code, problem
}

func TestRespondErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"not found", fmt.Errorf("role 7: %w", shared.ErrNotFound), 404},
		{"conflict", fmt.Errorf("name taken: %w", shared.ErrConflict), 409},
		{"dependents", fmt.Errorf("3 children: %w", shared.ErrHasDependents), 409},
		{"cycle", fmt.Errorf("loop: %w", shared.ErrCycleDetected), 500},
		{"validation", fmt.Errorf("%w: email", ErrValidation), 400},
		{"forbidden", shared.ErrForbidden, 403},
		{"unauthenticated", shared.ErrUnauthenticated, 401},
		{"bad credentials", shared.ErrInvalidCredentials, 401},
		{"unknown", errors.New("disk on fire"), 500},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, _ := respond(t, tc.err)
			require.Equal(t, tc.status, status)
		})
	}
}

func TestRespondErrorHidesInternals(t *testing.T) {
	_, problem := respond(t, errors.New("pgx: connection refused to 10.0.0.3"))
	require.NotContains(t, problem.Detail, "10.0.0.3")

	// Cycle responses surface as opaque 500s, never the chain.
	_, problem = respond(t, fmt.Errorf("resolve role 9: parent chain revisits role 4: %w", shared.ErrCycleDetected))
	require.NotContains(t, problem.Detail, "role 4")
}
