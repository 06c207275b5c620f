package processor

import (
	"testing"
	"time"
)

func day(y int, m time.Month, d, hour int) time.Time {
	return time.Date(y, m, d, hour, 30, 0, 0, time.UTC)
}

func TestIsWithinWindowAcceptsNonDayMonthLabels(t *testing.T) {
	now := day(2024, 6, 10, 9)
	labels := []string{"", "14:05", "hoy", "1/6", "01/06/2024", "2024-06-01", " 01/06", "ab/cd"}
	for _, label := range labels {
		for _, window := range []int{0, 1, 2, 30} {
			if !IsWithinWindow(label, window, now) {
				t.Fatalf("IsWithinWindow(%q, %d) = false, want true", label, window)
			}
		}
	}
}

func TestIsWithinWindowMarchFifteenth(t *testing.T) {
	// today - window <= 15/03 → 接受
	if !IsWithinWindow("15/03", 1, day(2024, 3, 16, 23)) {
		t.Fatalf("15/03 should be inside a 1-day window on 16/03")
	}
	if !IsWithinWindow("15/03", 0, day(2024, 3, 15, 0)) {
		t.Fatalf("15/03 should be inside a 0-day window on 15/03")
	}
	if !IsWithinWindow("15/03", 2, day(2024, 3, 17, 12)) {
		t.Fatalf("15/03 should be inside a 2-day window on 17/03")
	}
	// window=0, today=16/03 → 拒绝
	if IsWithinWindow("15/03", 0, day(2024, 3, 16, 0)) {
		t.Fatalf("15/03 should be outside a 0-day window on 16/03")
	}
	if IsWithinWindow("15/03", 1, day(2024, 3, 17, 0)) {
		t.Fatalf("15/03 should be outside a 1-day window on 17/03")
	}
}

func TestIsWithinWindowInfersPreviousYear(t *testing.T) {
	now := day(2025, 1, 1, 8)
	if !IsWithinWindow("31/12", 1, now) {
		t.Fatalf("31/12 seen on 01/01 should be 31/12 of the previous year and inside a 1-day window")
	}
	// 若推断为当年 12 月 31 日，会被误判为未来日期而放行；窗口 0 时应拒绝
	if IsWithinWindow("31/12", 0, now) {
		t.Fatalf("31/12 of the previous year is outside a 0-day window on 01/01")
	}
	if IsWithinWindow("01/02", 2, now) {
		t.Fatalf("01/02 seen in January is last February and must be rejected")
	}
}

func TestIsWithinWindowInvalidDatesFailClosed(t *testing.T) {
	now := day(2024, 5, 1, 12)
	for _, label := range []string{"31/04", "00/05", "01/00", "30/02", "32/01", "10/13"} {
		if IsWithinWindow(label, 400, now) {
			t.Fatalf("IsWithinWindow(%q) = true, invalid dates must be rejected", label)
		}
	}
	if !IsWithinWindow("29/02", 400, now) {
		t.Fatalf("29/02 is valid in 2024")
	}
}

func TestIsWithinWindowUsesLocationOfNow(t *testing.T) {
	loc := time.FixedZone("CET", 2*3600)
	now := time.Date(2024, 3, 16, 0, 30, 0, 0, loc) // UTC 仍是 15/03
	if IsWithinWindow("14/03", 1, now) {
		t.Fatalf("14/03 is two days before 16/03 local time")
	}
}
