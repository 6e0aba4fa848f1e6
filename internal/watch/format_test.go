package watch

import "testing"

func TestFormatUptime(t *testing.T) {
	cases := []struct {
		seconds int64
		want    string
	}{
		{0, "0m"},
		{59, "0m"},
		{60, "1m"},
		{3599, "59m"},
		{3600, "1h 0m"},
		{5430, "1h 30m"},
		{86399, "23h 59m"},
		{86400, "1d 0h 0m"},
		{93780, "1d 2h 3m"},
		{259500, "3d 0h 5m"},
		{-5, "0m"},
	}
	for _, tc := range cases {
		if got := FormatUptime(tc.seconds); got != tc.want {
			t.Errorf("FormatUptime(%d) = %q, want %q", tc.seconds, got, tc.want)
		}
	}
}
