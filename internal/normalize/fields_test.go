package normalize

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDate(t *testing.T) {
	want := time.Date(2019, time.March, 7, 0, 0, 0, 0, time.UTC)

	for _, in := range []string{"2019-03-07", "07-03-2019", "07/03/2019", "20190307", "07032019", "2019-03-07T00:00:00Z"} {
		t.Run(in, func(t *testing.T) {
			got := ParseDate(in)
			require.NotNil(t, got)
			assert.True(t, want.Equal(*got))
		})
	}

	got := ParseDate("2019-03")
	require.NotNil(t, got)
	assert.Equal(t, time.March, got.Month())
}

func TestParseDate_Sentinels(t *testing.T) {
	for _, in := range []string{"", "NA", "na", "11111111", "00000000", "31-31-2020", "yesterday"} {
		t.Run(in, func(t *testing.T) {
			assert.Nil(t, ParseDate(in))
		})
	}
}

func TestAmount(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"1,25,000.50", 125000.50},
		{"Rs. 4000", 4000},
		{"₹ 2,500", 2500},
		{"INR 10", 10},
		{"-500", 0},
		{"", 0},
		{"abc", 0},
		{"99.999", 100},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.InDelta(t, tt.want, Amount(tt.in), 0.001)
		})
	}
}
