// Copyright 2025 James Ross
package obs

import (
	"context"
	"errors"
	"testing"

	"github.com/adaspeas/deliveryd/internal/config"
)

func TestMaybeInitTracingDisabledIsNoop(t *testing.T) {
	cfg := &config.Config{}
	tp, err := MaybeInitTracing(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if tp != nil {
		t.Fatal("expected nil provider when tracing is disabled")
	}
	if err := TracerShutdown(context.Background(), tp); err != nil {
		t.Fatalf("nil-provider shutdown must succeed, got %v", err)
	}
}

func TestSpanHelpersAreSafeWithoutProvider(t *testing.T) {
	ctx, span := StartJobSpan(context.Background(), 7, "download", 100, 1)
	RecordError(ctx, errors.New("boom"))
	SetSpanSuccess(ctx)
	span.End()

	// helpers must also tolerate a bare context with no span at all
	RecordError(context.Background(), errors.New("boom"))
	SetSpanSuccess(context.Background())
}
