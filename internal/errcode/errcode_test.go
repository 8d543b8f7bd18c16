package errcode

import (
	"context"
	stdErrors "errors"
	"fmt"
	"testing"
	"time"
)

type fakeTimeoutErr struct{}

func (fakeTimeoutErr) Error() string { return "fake timeout" }
func (fakeTimeoutErr) Timeout() bool { return true }

func TestIsEngineErrorClassification(t *testing.T) {
	root := stdErrors.New("root")
	wrapped := fmt.Errorf("adding context: %w", root)
	re := NewResourceError("texturepool.acquire", wrapped)
	if !IsEngineError(re) {
		t.Fatalf("expected IsEngineError=true for resource error")
	}
	if !stdErrors.Is(re, root) {
		t.Fatalf("expected errors.Is to find root cause")
	}
	var e *ResourceError
	if !stdErrors.As(re, &e) {
		t.Fatalf("expected errors.As to *ResourceError")
	}
	if e.Op != "texturepool.acquire" {
		t.Fatalf("unexpected op: %s", e.Op)
	}

	ck := NewDecodeError("stream.demux", nil)
	if !IsEngineError(ck) {
		t.Fatalf("expected decode error classified as engine error")
	}
	cf := NewConfigError("graph.connect", nil)
	if !IsEngineError(cf) {
		t.Fatalf("expected config error classified")
	}
	fe := NewFatalError("handle.exhausted", stdErrors.New("no free slots"))
	if !IsEngineError(fe) {
		t.Fatalf("expected fatal error classified")
	}
}

func TestIsTimeout(t *testing.T) {
	root := fakeTimeoutErr{}
	to := NewTimeoutError("spsc.push", 5*time.Second, root)
	if !IsTimeout(to) {
		t.Fatalf("expected TimeoutError recognized")
	}
	if IsEngineError(to) {
		t.Fatalf("timeout should NOT be an engine error")
	}
	if !IsTimeout(context.DeadlineExceeded) {
		t.Fatalf("expected context deadline recognized")
	}
	var ne error = root
	if !IsTimeout(ne) {
		t.Fatalf("expected net-like timeout recognized")
	}
}

func TestUnwrapChains(t *testing.T) {
	base := stdErrors.New("short read")
	l1 := fmt.Errorf("read: %w", base)
	l2 := NewDecodeError("demux.readPacket", l1)
	if !stdErrors.Is(l2, base) {
		t.Fatalf("errors.Is should reach base cause")
	}
	var em engineMarker
	if !stdErrors.As(l2, &em) {
		t.Fatalf("expected to match engineMarker via As")
	}
}

func TestNilSafety(t *testing.T) {
	if IsEngineError(nil) {
		t.Fatalf("nil should not be engine error")
	}
	if IsTimeout(nil) {
		t.Fatalf("nil should not be timeout")
	}
}

func TestNegativePredicates(t *testing.T) {
	if IsEngineError(stdErrors.New("plain")) {
		t.Fatalf("plain error shouldn't be engine error")
	}
	if IsTimeout(stdErrors.New("plain")) {
		t.Fatalf("plain error shouldn't be timeout")
	}
}
