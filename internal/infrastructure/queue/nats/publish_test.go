package nats

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/sony/gobreaker/v2"

	"github.com/kirillkom/coactivo-intake/internal/core/domain"
)

func TestClassifyPublishError(t *testing.T) {
	cases := []struct {
		name          string
		err           error
		retryable     bool
		recordFailure bool
	}{
		{name: "canceled", err: context.Canceled},
		{name: "open breaker", err: gobreaker.ErrOpenState},
		{name: "no servers", err: fmt.Errorf("nats publish: %w", nats.ErrNoServers), retryable: true, recordFailure: true},
		{name: "reconnect buffer", err: nats.ErrReconnectBufExceeded, retryable: true, recordFailure: true},
		{name: "bad subject", err: nats.ErrBadSubject, recordFailure: true},
	}
	for _, tc := range cases {
		got := classifyPublishError(tc.err)
		if got.Retryable != tc.retryable || got.RecordFailure != tc.recordFailure {
			t.Fatalf("%s: got %+v", tc.name, got)
		}
	}
}

func TestPublishFailureMarksTemporary(t *testing.T) {
	if err := publishFailure(nats.ErrNoServers); !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected ErrTemporary, got %v", err)
	}
	if err := publishFailure(gobreaker.ErrOpenState); !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("open breaker should surface as temporary, got %v", err)
	}
	plain := errors.New("bad payload")
	if err := publishFailure(plain); domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("non-retryable error wrapped as temporary: %v", err)
	}
}
