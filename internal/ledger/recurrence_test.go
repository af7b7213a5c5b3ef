package ledger

import (
	"testing"
	"time"

	"github.com/splitledger/splitledger/internal/models"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestNextDate(t *testing.T) {
	tests := []struct {
		name  string
		rule  models.RecurrenceRule
		prior time.Time
		want  time.Time
	}{
		{"daily crosses month", models.RecurrenceDaily, date(2025, time.January, 31), date(2025, time.February, 1)},
		{"daily crosses year", models.RecurrenceDaily, date(2025, time.December, 31), date(2026, time.January, 1)},
		{"weekly adds seven days", models.RecurrenceWeekly, date(2025, time.March, 25), date(2025, time.April, 1)},
		{"monthly plain", models.RecurrenceMonthly, date(2025, time.March, 15), date(2025, time.April, 15)},
		{"monthly clamps jan 31 to feb 28", models.RecurrenceMonthly, date(2025, time.January, 31), date(2025, time.February, 28)},
		{"monthly clamps to feb 29 in leap year", models.RecurrenceMonthly, date(2024, time.January, 31), date(2024, time.February, 29)},
		{"monthly clamps aug 31 to sep 30", models.RecurrenceMonthly, date(2025, time.August, 31), date(2025, time.September, 30)},
		{"monthly rolls over the year", models.RecurrenceMonthly, date(2025, time.December, 10), date(2026, time.January, 10)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NextDate(tt.rule, tt.prior)
			if err != nil {
				t.Fatalf("NextDate() error = %v", err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("NextDate(%v, %v) = %v, want %v", tt.rule, tt.prior, got, tt.want)
			}
		})
	}
}

// Once a monthly recurrence clamps, subsequent projections continue from
// the clamped day and never snap back to the original day of month.
func TestNextDateClampPersists(t *testing.T) {
	cursor := date(2025, time.January, 31)
	want := []time.Time{
		date(2025, time.February, 28),
		date(2025, time.March, 28),
		date(2025, time.April, 28),
	}
	for i, expected := range want {
		next, err := NextDate(models.RecurrenceMonthly, cursor)
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if !next.Equal(expected) {
			t.Fatalf("step %d: got %v, want %v", i, next, expected)
		}
		cursor = next
	}
}

func TestNextDatePreservesTimeOfDay(t *testing.T) {
	prior := time.Date(2025, time.January, 31, 9, 30, 0, 0, time.UTC)
	got, err := NextDate(models.RecurrenceMonthly, prior)
	if err != nil {
		t.Fatalf("NextDate() error = %v", err)
	}
	want := time.Date(2025, time.February, 28, 9, 30, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("NextDate() = %v, want %v", got, want)
	}
}

func TestNextDateRejectsNonRepeatingRules(t *testing.T) {
	for _, rule := range []models.RecurrenceRule{models.RecurrenceNone, models.RecurrenceRule("YEARLY")} {
		if _, err := NextDate(rule, date(2025, time.June, 1)); err == nil {
			t.Errorf("NextDate(%q) expected error", rule)
		}
	}
}
