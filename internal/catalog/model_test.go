package catalog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLibraryPath_ScanDue(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	lastScan := func(d time.Duration) *time.Time {
		ts := now.Add(-d)
		return &ts
	}

	tests := []struct {
		name string
		path LibraryPath
		want bool
	}{
		{
			name: "never scanned",
			path: LibraryPath{ScanIntervalHours: 24, LastScan: nil},
			want: true,
		},
		{
			name: "interval elapsed",
			path: LibraryPath{ScanIntervalHours: 24, LastScan: lastScan(25 * time.Hour)},
			want: true,
		},
		{
			name: "exactly at boundary",
			path: LibraryPath{ScanIntervalHours: 24, LastScan: lastScan(24 * time.Hour)},
			want: true,
		},
		{
			name: "one second before boundary",
			path: LibraryPath{ScanIntervalHours: 24, LastScan: lastScan(24*time.Hour - time.Second)},
			want: false,
		},
		{
			name: "scanned just now",
			path: LibraryPath{ScanIntervalHours: 24, LastScan: lastScan(0)},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.path.ScanDue(now))
		})
	}
}
