package config

import (
	"testing"
	"time"
)

func TestInt(t *testing.T) {
	t.Setenv("SALON_TEST_INT", "")
	n, err := Int("SALON_TEST_INT", 7)
	if err != nil || n != 7 {
		t.Fatalf("expected fallback 7, got %d (%v)", n, err)
	}

	t.Setenv("SALON_TEST_INT", "42")
	n, err = Int("SALON_TEST_INT", 7)
	if err != nil || n != 42 {
		t.Fatalf("expected 42, got %d (%v)", n, err)
	}

	t.Setenv("SALON_TEST_INT", "-3")
	if _, err := Int("SALON_TEST_INT", 7); err == nil {
		t.Fatal("expected error for negative value")
	}
}

func TestDuration(t *testing.T) {
	t.Setenv("SALON_TEST_DUR", "90s")
	d, err := Duration("SALON_TEST_DUR", time.Minute)
	if err != nil || d != 90*time.Second {
		t.Fatalf("expected 90s, got %s (%v)", d, err)
	}

	t.Setenv("SALON_TEST_DUR", "soon")
	if _, err := Duration("SALON_TEST_DUR", time.Minute); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestBoolAndList(t *testing.T) {
	t.Setenv("SALON_TEST_BOOL", "off")
	if Bool("SALON_TEST_BOOL", true) {
		t.Fatal("expected false")
	}
	t.Setenv("SALON_TEST_BOOL", "maybe")
	if !Bool("SALON_TEST_BOOL", true) {
		t.Fatal("expected fallback true")
	}

	t.Setenv("SALON_TEST_LIST", " a, ,b ,")
	got := List("SALON_TEST_LIST")
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("unexpected list: %v", got)
	}
}
