package otel

import (
	"context"
	"testing"
)

func TestInitWithoutExporters(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{ServiceName: "lottod"})
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if _, err := Init(context.Background(), Config{}); err == nil {
		t.Fatalf("expected missing service name to fail")
	}
}

func TestParseHeaders(t *testing.T) {
	headers := ParseHeaders(" api-key = abc ,broken, =x,tenant=lotto")
	if len(headers) != 2 || headers["api-key"] != "abc" || headers["tenant"] != "lotto" {
		t.Fatalf("unexpected headers %v", headers)
	}
}

func TestSamplerBounds(t *testing.T) {
	if got := sampler(0).Description(); got == sampler(0.5).Description() {
		t.Fatalf("ratio sampler should differ from always-on, got %q", got)
	}
}
