package ratelimit_test

import (
	"testing"

	"contextd/src/infrastructure/ratelimit"
)

func TestBurstThenReject(t *testing.T) {
	l := ratelimit.PerMinute(5)

	for i := 0; i < 5; i++ {
		if !l.Allow("10.0.0.1") {
			t.Fatalf("request %d rejected within burst", i+1)
		}
	}
	if l.Allow("10.0.0.1") {
		t.Fatal("request beyond burst allowed")
	}
}

func TestZeroBudgetRejectsFirstRequest(t *testing.T) {
	l := ratelimit.PerMinute(0)
	if l.Allow("10.0.0.1") {
		t.Fatal("zero-budget limiter admitted a request")
	}
}

func TestKeysAreIndependent(t *testing.T) {
	l := ratelimit.PerMinute(2)

	for i := 0; i < 2; i++ {
		if !l.Allow("a") {
			t.Fatalf("key a request %d rejected", i+1)
		}
	}
	if l.Allow("a") {
		t.Fatal("key a allowed beyond its bucket")
	}
	if !l.Allow("b") {
		t.Fatal("key b rejected despite a fresh bucket")
	}
	if l.Tracked() != 2 {
		t.Fatalf("tracking %d keys, want 2", l.Tracked())
	}
}
