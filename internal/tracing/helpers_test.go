package tracing

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func setupRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(prev)
	})
	return recorder
}

func attrValue(attrs []attribute.KeyValue, key attribute.Key) (attribute.Value, bool) {
	for _, kv := range attrs {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestStartSpan(t *testing.T) {
	recorder := setupRecorder(t)

	_, end := StartSpan(context.Background(), "listing.feature", attribute.String("listing.id", "abc"))
	end(nil)

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Name() != "listing.feature" {
		t.Errorf("span name = %q, want listing.feature", spans[0].Name())
	}
	if v, ok := attrValue(spans[0].Attributes(), "listing.id"); !ok || v.AsString() != "abc" {
		t.Errorf("listing.id attribute = %v (present=%v), want abc", v.AsString(), ok)
	}
	if spans[0].InstrumentationScope().Name != TracerName {
		t.Errorf("scope = %q, want %q", spans[0].InstrumentationScope().Name, TracerName)
	}
}

func TestStartRankSpan(t *testing.T) {
	recorder := setupRecorder(t)

	tests := []string{"featured", "page", "search"}
	for _, op := range tests {
		_, end := StartRankSpan(context.Background(), op)
		end(nil)
	}

	spans := recorder.Ended()
	if len(spans) != len(tests) {
		t.Fatalf("expected %d spans, got %d", len(tests), len(spans))
	}
	for i, op := range tests {
		if want := "rank " + op; spans[i].Name() != want {
			t.Errorf("span name = %q, want %q", spans[i].Name(), want)
		}
		if v, ok := attrValue(spans[i].Attributes(), AttrRankOperation); !ok || v.AsString() != op {
			t.Errorf("ranking.operation = %q, want %q", v.AsString(), op)
		}
	}
}

func TestStartCacheSpan(t *testing.T) {
	tests := []struct {
		name    string
		command string
		key     string
		wantKey bool
	}{
		{"with key", "get", "featured", true},
		{"without key", "incr", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := setupRecorder(t)

			_, end := StartCacheSpan(context.Background(), tt.command, tt.key)
			end(nil)

			spans := recorder.Ended()
			if len(spans) != 1 {
				t.Fatalf("expected 1 span, got %d", len(spans))
			}
			span := spans[0]
			if span.SpanKind() != trace.SpanKindClient {
				t.Errorf("span kind = %v, want client", span.SpanKind())
			}
			if v, _ := attrValue(span.Attributes(), "db.system"); v.AsString() != "redis" {
				t.Errorf("db.system = %q, want redis", v.AsString())
			}
			if v, _ := attrValue(span.Attributes(), "db.operation"); v.AsString() != tt.command {
				t.Errorf("db.operation = %q, want %q", v.AsString(), tt.command)
			}
			if _, ok := attrValue(span.Attributes(), "cache.key"); ok != tt.wantKey {
				t.Errorf("cache.key present = %v, want %v", ok, tt.wantKey)
			}
		})
	}
}

func TestEndFunc_RecordsError(t *testing.T) {
	recorder := setupRecorder(t)

	_, end := StartSpan(context.Background(), "failing")
	end(errors.New("boom"))

	span := recorder.Ended()[0]
	if span.Status().Code != codes.Error {
		t.Errorf("status = %v, want error", span.Status().Code)
	}
	if span.Status().Description != "boom" {
		t.Errorf("status description = %q, want boom", span.Status().Description)
	}
	if len(span.Events()) == 0 {
		t.Error("expected the error to be recorded as an event")
	}
}

func TestAddEventAndSetAttributes(t *testing.T) {
	recorder := setupRecorder(t)

	ctx, end := StartSpan(context.Background(), "parent")
	AddEvent(ctx, "cache_invalidated", attribute.Int("generation", 2))
	SetAttributes(ctx, AttrCacheHit.Bool(true), AttrRankCount.Int(5))
	end(nil)

	span := recorder.Ended()[0]
	if len(span.Events()) != 1 || span.Events()[0].Name != "cache_invalidated" {
		t.Errorf("unexpected events: %+v", span.Events())
	}
	if v, ok := attrValue(span.Attributes(), AttrCacheHit); !ok || !v.AsBool() {
		t.Error("expected ranking.cache_hit=true")
	}
	if v, ok := attrValue(span.Attributes(), AttrRankCount); !ok || v.AsInt64() != 5 {
		t.Error("expected ranking.listings=5")
	}
}

func TestChildSpanSharesTrace(t *testing.T) {
	recorder := setupRecorder(t)

	ctx, endParent := StartRankSpan(context.Background(), "page")
	_, endChild := StartCacheSpan(ctx, "get", "approved")
	endChild(nil)
	endParent(nil)

	spans := recorder.Ended()
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}
	child, parent := spans[0], spans[1]
	if child.Parent().SpanID() != parent.SpanContext().SpanID() {
		t.Error("cache span should be a child of the rank span")
	}
	if child.SpanContext().TraceID() != parent.SpanContext().TraceID() {
		t.Error("spans should share a trace ID")
	}
}
