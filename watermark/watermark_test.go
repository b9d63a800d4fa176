package watermark

import (
	"testing"
	"time"
)

func day(d int) time.Time {
	return time.Date(2026, 5, d, 0, 0, 0, 0, time.UTC)
}

func TestClamp_AppliesBuffer(t *testing.T) {
	got := Clamp(Sentinel, day(10), 24*time.Hour)

	if !got.Equal(day(9)) {
		t.Errorf("Expected boundary %v, got %v", day(9), got)
	}
}

func TestClamp_NeverRegresses(t *testing.T) {
	stored := day(15)

	// Buffered candidate (day 9) is earlier than the stored boundary
	got := Clamp(stored, day(10), 24*time.Hour)

	if !got.Equal(stored) {
		t.Errorf("Expected stored boundary %v to be kept, got %v", stored, got)
	}
}

func TestClamp_EqualBoundaryIsNoOp(t *testing.T) {
	stored := day(9)

	got := Clamp(stored, day(10), 24*time.Hour)

	if !got.Equal(stored) {
		t.Errorf("Expected no-op at equal boundary, got %v", got)
	}
}

func TestClamp_MonotonicAcrossSequence(t *testing.T) {
	// Simulate a sequence of advances with out-of-order observed maxima
	observed := []time.Time{day(5), day(12), day(8), day(3), day(20)}

	boundary := Sentinel
	for _, o := range observed {
		next := Clamp(boundary, o, 24*time.Hour)
		if next.Before(boundary) {
			t.Fatalf("Boundary regressed from %v to %v", boundary, next)
		}
		boundary = next
	}

	if !boundary.Equal(day(19)) {
		t.Errorf("Expected final boundary %v, got %v", day(19), boundary)
	}
}

func TestClamp_ZeroBuffer(t *testing.T) {
	got := Clamp(Sentinel, day(10), 0)

	if !got.Equal(day(10)) {
		t.Errorf("Expected boundary %v with zero buffer, got %v", day(10), got)
	}
}
