package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPeriodKeys(t *testing.T) {
	day, month := periodKeys(time.Date(2026, 8, 29, 23, 59, 0, 0, time.UTC))
	require.Equal(t, "2026-08-29", day)
	require.Equal(t, "2026-08", month)
}

func TestPeriodKeys_NormalizesToUTC(t *testing.T) {
	loc := time.FixedZone("UTC+9", 9*3600)
	// 2026-09-01 03:00 +09:00 is still 2026-08-31 in UTC
	day, month := periodKeys(time.Date(2026, 9, 1, 3, 0, 0, 0, loc))
	require.Equal(t, "2026-08-31", day)
	require.Equal(t, "2026-08", month)
}
