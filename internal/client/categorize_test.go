package client

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/kjstillabower/forecast-service/internal/models"
)

// TestCategorizeError verifies that CategorizeError maps sentinel, wrapped and
// message-only errors to the expected metric label.
func TestCategorizeError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCategory
	}{
		{"nil", nil, ""},
		{"timeout sentinel", fmt.Errorf("%w: %w", models.ErrFetchFailed, ErrTimeout), ErrorCategoryTimeout},
		{"deadline", context.DeadlineExceeded, ErrorCategoryTimeout},
		{"canceled", context.Canceled, ErrorCategoryTimeout},
		{"circuit open", fmt.Errorf("%w: open", ErrCircuitOpen), ErrorCategoryCircuitOpen},
		{"invalid API key", fmt.Errorf("auth: %w", ErrInvalidAPIKey), ErrorCategoryInvalidAPIKey},
		{"location not found", ErrLocationNotFound, ErrorCategoryLocationNotFound},
		{"rate limited", ErrRateLimited, ErrorCategoryRateLimited},
		{"upstream", ErrUpstreamFailure, ErrorCategoryUpstream},
		{"malformed payload", fmt.Errorf("%w: bad", models.ErrPayloadMalformed), ErrorCategoryParsing},
		{"connection refused", errors.New("dial tcp: connection refused"), ErrorCategoryNetwork},
		{"parse in message", errors.New("parse response: invalid json"), ErrorCategoryParsing},
		{"unknown", errors.New("something else"), ErrorCategoryUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CategorizeError(tt.err); got != tt.want {
				t.Errorf("CategorizeError() = %v, want %v", got, tt.want)
			}
		})
	}
}
