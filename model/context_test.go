package model

import (
	"testing"
)

func TestNewChildContext(t *testing.T) {
	parent := NewRootContext(true, false).WithBaggageItem("user", "42")
	child := NewChildContext(parent)

	if child.TraceID() != parent.TraceID() {
		t.Fatalf("child trace id = %s, want %s", child.TraceID(), parent.TraceID())
	}
	if child.SpanID() == parent.SpanID() || child.SpanID() == 0 {
		t.Fatalf("child span id %s must be fresh and non-zero", child.SpanID())
	}
	if child.ParentID() != parent.SpanID() {
		t.Fatalf("child parent id = %s, want %s", child.ParentID(), parent.SpanID())
	}
	if child.Flags() != parent.Flags() {
		t.Fatalf("child flags = %d, want %d", child.Flags(), parent.Flags())
	}
	if got := child.BaggageItem("user"); got != "42" {
		t.Fatalf("child baggage user = %q, want 42", got)
	}
	if child.IsRoot() || !parent.IsRoot() {
		t.Fatal("only the parent should be a root")
	}
}

func TestNewRootContextFlags(t *testing.T) {
	tests := []struct {
		sampled, debug bool
		want           Flags
	}{
		{false, false, 0},
		{true, false, FlagSampled},
		{false, true, FlagDebug},
		{true, true, FlagSampled | FlagDebug},
	}
	for _, tt := range tests {
		ctx := NewRootContext(tt.sampled, tt.debug)
		if ctx.Flags() != tt.want {
			t.Errorf("NewRootContext(%v, %v).Flags() = %d, want %d", tt.sampled, tt.debug, ctx.Flags(), tt.want)
		}
		if ctx.IsSampled() != tt.sampled || ctx.IsDebug() != tt.debug {
			t.Errorf("NewRootContext(%v, %v) reports sampled=%v debug=%v", tt.sampled, tt.debug, ctx.IsSampled(), ctx.IsDebug())
		}
		if !ctx.IsValid() || ctx.ParentID() != 0 {
			t.Errorf("root context %+v should be valid with no parent", ctx)
		}
	}
}

func TestWithBaggageItemCopiesOnWrite(t *testing.T) {
	parent := NewRootContext(true, false).WithBaggageItem("a", "1")
	child := NewChildContext(parent)
	updated := child.WithBaggageItem("b", "2")

	if parent.BaggageItem("b") != "" || child.BaggageItem("b") != "" {
		t.Fatal("WithBaggageItem mutated a shared context")
	}
	if updated.BaggageItem("a") != "1" || updated.BaggageItem("b") != "2" {
		t.Fatalf("updated context lost baggage: a=%q b=%q", updated.BaggageItem("a"), updated.BaggageItem("b"))
	}

	items := map[string]string{}
	updated.ForeachBaggageItem(func(k, v string) bool {
		items[k] = v
		return true
	})
	if len(items) != 2 {
		t.Fatalf("ForeachBaggageItem visited %d items, want 2", len(items))
	}
}

func TestNewSpanContextCopiesBaggage(t *testing.T) {
	baggage := map[string]string{"k": "v"}
	ctx := NewSpanContext(TraceID{Low: 1}, 2, 3, FlagDebug, baggage)
	baggage["k"] = "changed"
	if got := ctx.BaggageItem("k"); got != "v" {
		t.Fatalf("BaggageItem(k) = %q, want v", got)
	}
}
