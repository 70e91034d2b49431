package grade

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLevel(t *testing.T) {
	tests := []struct {
		average float64
		want    string
	}{
		{50, "A"}, {45, "A"}, {44.99, "B"}, {40, "B"}, {35, "C"}, {30, "D"}, {25, "E"}, {24.99, "F"}, {0, "F"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Level(tt.average), tt.average)
	}
}

func TestRank(t *testing.T) {
	tests := []struct {
		name     string
		averages []float64
		want     []int
	}{
		{name: "empty", averages: []float64{}, want: []int{}},
		{name: "distinct", averages: []float64{30, 47, 35}, want: []int{3, 1, 2}},
		{name: "ties skip places", averages: []float64{40, 45, 40, 20}, want: []int{2, 1, 2, 4}},
		{name: "ties after rounding", averages: []float64{33.333, 33.3333, 10}, want: []int{1, 1, 3}},
		{name: "all equal", averages: []float64{0, 0}, want: []int{1, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Rank(tt.averages))
		})
	}
}
