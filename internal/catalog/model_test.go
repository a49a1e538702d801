package catalog

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int       { return &v }
func strPtr(v string) *string { return &v }

func TestPackageTerms(t *testing.T) {
	trainer := 9

	tests := []struct {
		name    string
		pkg     Package
		want    Terms
		wantErr bool
	}{
		{
			name: "time-bound in months",
			pkg:  Package{ID: 1, Kind: KindTimeBound, DurationMonths: intPtr(3)},
			want: TimeBoundTerms{Duration: Duration{Months: 3}},
		},
		{
			name: "time-bound in days",
			pkg:  Package{ID: 2, Kind: KindTimeBound, DurationDays: intPtr(30)},
			want: TimeBoundTerms{Duration: Duration{Days: 30}},
		},
		{
			name:    "time-bound without duration",
			pkg:     Package{ID: 3, Kind: KindTimeBound},
			wantErr: true,
		},
		{
			name: "PT open-ended",
			pkg:  Package{ID: 4, Kind: KindPT, Sessions: intPtr(12), TrainerID: &trainer},
			want: PTTerms{Sessions: 12, TrainerID: &trainer},
		},
		{
			name: "per-visit defaults to 60 days",
			pkg:  Package{ID: 5, Kind: KindPerVisit, Sessions: intPtr(10)},
			want: VisitTerms{Sessions: 10, ValidityDays: VisitValidityDays},
		},
		{
			name:    "per-visit without sessions",
			pkg:     Package{ID: 6, Kind: KindPerVisit},
			wantErr: true,
		},
		{
			name:    "unknown kind",
			pkg:     Package{ID: 7, Kind: "yoga"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.pkg.Terms()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDurationDaysFromMonths(t *testing.T) {
	start := time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC)

	assert.Equal(t, 29, Duration{Months: 1}.DaysFrom(start))
	assert.Equal(t, 30, Duration{Days: 30}.DaysFrom(start))
	assert.Equal(t, time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), Duration{Months: 1}.AddTo(start))
}

func TestTimeSlotWindows(t *testing.T) {
	start, end, ok := SlotAfternoon2.Window()
	require.True(t, ok)
	assert.Equal(t, 16, start)
	assert.Equal(t, 18, end)
	assert.Equal(t, "19:00 - 21:00", SlotEvening.Label())
	assert.False(t, TimeSlot("NIGHT").Valid())
}

func TestAllowsWeekday(t *testing.T) {
	monday := time.Monday

	assert.True(t, AllowsWeekday(nil, monday))
	assert.True(t, AllowsWeekday(strPtr(""), monday))
	assert.True(t, AllowsWeekday(strPtr("mon, Wed,FRI"), monday))
	assert.False(t, AllowsWeekday(strPtr("SAT,SUN"), monday))
	assert.False(t, AllowsWeekday(strPtr("MONDAY"), monday))
}

func TestWithinHours(t *testing.T) {
	at := func(h, m, sec int) time.Time { return time.Date(2024, 5, 6, h, m, sec, 0, time.UTC) }

	assert.True(t, WithinHours(nil, nil, at(3, 0, 0)))
	assert.True(t, WithinHours(strPtr("06:00"), strPtr("10:00"), at(6, 0, 0)))
	assert.True(t, WithinHours(strPtr("06:00"), strPtr("10:00"), at(10, 0, 0)))
	assert.False(t, WithinHours(strPtr("06:00"), strPtr("10:00"), at(5, 59, 59)))
	assert.False(t, WithinHours(strPtr("06:00"), strPtr("10:00"), at(10, 0, 45)))
	assert.False(t, WithinHours(strPtr("06:00"), strPtr("10:00"), at(10, 1, 0)))
	assert.True(t, WithinHours(strPtr("06:00:00"), strPtr("10:00:30"), at(10, 0, 30)))

	t.Run("one bound is unrestricted", func(t *testing.T) {
		assert.True(t, WithinHours(strPtr("18:00"), nil, at(10, 0, 0)))
		assert.True(t, WithinHours(nil, strPtr("10:00"), at(22, 0, 0)))
		assert.True(t, WithinHours(strPtr("18:00"), strPtr(""), at(10, 0, 0)))
	})
}

func TestPromotionActiveAt(t *testing.T) {
	start := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	p := Promotion{DiscountPercent: decimal.NewFromInt(20), StartAt: start, EndAt: start.AddDate(0, 0, 7), IsActive: true}

	assert.True(t, p.ActiveAt(start))
	assert.True(t, p.ActiveAt(start.Add(time.Hour)))
	assert.False(t, p.ActiveAt(start.AddDate(0, 0, 7)))
	assert.False(t, p.ActiveAt(start.Add(-time.Second)))
}
