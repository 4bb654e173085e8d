package utils

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatSize(t *testing.T) {
	tests := []struct {
		in   uint64
		want string
	}{
		{0, "0 bytes"},
		{1, "1 bytes"},
		{1023, "1023 bytes"},
		{1024, "1 KB"},
		{1280, "1.25 KB"},
		{1536, "1.5 KB"},
		{1126, "1.09 KB"},
		{1<<20 - 1, "1023.99 KB"},
		{1 << 30, "1 GB"},
		{5<<30 + 1<<29, "5.5 GB"},
		{1 << 40, "1 TB"},
		{math.MaxUint64, "15.99 EB"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatSize(tt.in), "FormatSize(%d)", tt.in)
	}
}

func TestNumber(t *testing.T) {
	assert.Equal(t, "0", Number(0))
	assert.Equal(t, "999", Number(999))
	assert.Equal(t, "1,000", Number(1000))
	assert.Equal(t, "1,234,567", Number(1234567))
}

func TestDuration(t *testing.T) {
	assert.Equal(t, "0s", Duration(500*time.Millisecond))
	assert.Equal(t, "5.2s", Duration(5200*time.Millisecond))
	assert.Equal(t, "3m5.2s", Duration(3*time.Minute+5200*time.Millisecond))
	assert.Equal(t, "2h15m", Duration(2*time.Hour+15*time.Minute+30*time.Second))
}

func TestRate(t *testing.T) {
	assert.Equal(t, "0 bytes/s", Rate(0))
	assert.Equal(t, "0 bytes/s", Rate(-5))
	assert.Equal(t, "0 bytes/s", Rate(math.Inf(1)))
	assert.Equal(t, "0 bytes/s", Rate(math.NaN()))
	assert.Equal(t, "512 bytes/s", Rate(512.7))
	assert.Equal(t, "1.5 MB/s", Rate(1572864))
}
