package timeparse

import (
	"fmt"
	"strings"

	"github.com/viewassist/timerd/internal/models"
)

// DescribeResolution renders the resolved expiry as the spoken response
// text. The rendering is built from the resolver's structured output, never
// by re-parsing a formatted timestamp.
func DescribeResolution(res *Resolution) string {
	switch {
	case res == nil:
		return ""
	case res.Interval != nil:
		return describeInterval(*res.Interval)
	case res.Time != nil:
		return describeTime(*res.Time)
	default:
		return ""
	}
}

func describeInterval(iv models.TimerInterval) string {
	parts := make([]string, 0, 4)
	appendUnit := func(n int, singular string) {
		switch {
		case n == 1:
			parts = append(parts, "1 "+singular)
		case n > 1:
			parts = append(parts, fmt.Sprintf("%d %ss", n, singular))
		}
	}
	appendUnit(iv.Days, "day")
	appendUnit(iv.Hours, "hour")
	appendUnit(iv.Minutes, "minute")
	appendUnit(iv.Seconds, "second")
	if len(parts) == 0 {
		return "0 seconds"
	}
	if len(parts) == 1 {
		return parts[0]
	}
	return strings.Join(parts[:len(parts)-1], ", ") + " and " + parts[len(parts)-1]
}

func describeTime(tt models.TimerTime) string {
	var b strings.Builder
	if tt.Second > 0 {
		fmt.Fprintf(&b, "%d:%02d:%02d", tt.Hour, tt.Minute, tt.Second)
	} else if tt.Minute > 0 {
		fmt.Fprintf(&b, "%d:%02d", tt.Hour, tt.Minute)
	} else {
		fmt.Fprintf(&b, "%d", tt.Hour)
	}
	if tt.Meridiem != "" {
		b.WriteString(" " + tt.Meridiem)
	} else {
		b.WriteString(" o'clock")
	}
	if tt.Day != "" {
		b.WriteString(" " + tt.Day)
	}
	return b.String()
}
