package api

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"buffet/internal/actor"
	"buffet/internal/domain"
)

func TestToStatus(t *testing.T) {
	tests := []struct {
		err  error
		want codes.Code
	}{
		{fmt.Errorf("strategy x: %w", domain.ErrNotFound), codes.NotFound},
		{fmt.Errorf("%w: bad side", domain.ErrInvalidInput), codes.InvalidArgument},
		{fmt.Errorf("order is filled: %w", domain.ErrInvalidTransition), codes.FailedPrecondition},
		{fmt.Errorf("ledger: %w", actor.ErrUnavailable), codes.Unavailable},
		{actor.ErrClosed, codes.Unavailable},
		{fmt.Errorf("ledger: %w", actor.ErrTimeout), codes.DeadlineExceeded},
		{context.DeadlineExceeded, codes.DeadlineExceeded},
		{context.Canceled, codes.Canceled},
		{domain.NewStoreError("inserting order", errors.New("disk full")), codes.Internal},
		{status.Error(codes.AlreadyExists, "kept"), codes.AlreadyExists},
	}
	for _, tt := range tests {
		if got := status.Code(toStatus(tt.err)); got != tt.want {
			t.Errorf("toStatus(%v) code = %v, want %v", tt.err, got, tt.want)
		}
	}
	if toStatus(nil) != nil {
		t.Error("toStatus(nil) should be nil")
	}
}
