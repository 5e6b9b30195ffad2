package engine

import (
	"testing"

	"plus-ev-alerts/internal/odds"
)

func TestKellyFraction(t *testing.T) {
	tests := []struct {
		name string
		p    float64
		o    float64
		size float64
		want float64
	}{
		{name: "positive edge", p: 0.45, o: 2.30, size: 1, want: 0.035 / 1.3},
		{name: "half kelly", p: 0.45, o: 2.30, size: 0.5, want: 0.035 / 2.6},
		{name: "negative edge clamps", p: 0.1, o: 1.5, size: 1, want: 0},
		{name: "fair price", p: 0.5, o: 2.0, size: 1, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KellyFraction(tt.p, tt.o, tt.size); !approx(got, tt.want) {
				t.Fatalf("KellyFraction = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStakeSizerSize(t *testing.T) {
	opps := []odds.Opportunity{
		{MergedLine: odds.MergedLine{DecimalOdds: 2.30}, PredictedProbability: 0.45},
		{MergedLine: odds.MergedLine{DecimalOdds: 1.5}, PredictedProbability: 0.1},
	}
	DefaultStakeSizer.Size(opps)
	if opps[0].Kelly <= 0 || !approx(opps[0].HalfKelly, opps[0].Kelly/2) {
		t.Fatalf("unexpected sizing %+v", opps[0])
	}
	if opps[1].Kelly != 0 || opps[1].HalfKelly != 0 {
		t.Fatalf("negative edge should size to zero, got %+v", opps[1])
	}
}
