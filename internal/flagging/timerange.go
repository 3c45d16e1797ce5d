// Package flagging parses online flag commands and the CASA time strings
// they carry, and turns them into per-antenna sample masks.
package flagging

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/soniakeys/meeus/v3/julian"
)

const (
	secondsPerDay = 86400.0
	// mjdOffset converts Julian dates to modified Julian dates.
	mjdOffset = 2400000.5
)

// ErrBadTime reports an unparseable time or time range string.
var ErrBadTime = errors.New("flagging: bad time")

// TimeRange is a closed interval in MJD seconds, the unit of the TIME column.
type TimeRange struct {
	Start float64
	End   float64
}

// Contains reports whether t lies within the range, bounds included.
func (r TimeRange) Contains(t float64) bool {
	return t >= r.Start && t <= r.End
}

func (r TimeRange) String() string {
	return FormatTime(r.Start) + "~" + FormatTime(r.End)
}

// ParseTime converts "YYYY/MM/DD/hh:mm:ss.sss" (the CASA ymd form) to MJD
// seconds. The time of day may be omitted or separated by a space, and
// minutes and seconds may be dropped from the right.
func ParseTime(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty", ErrBadTime)
	}
	s = strings.Replace(s, " ", "/", 1)
	parts := strings.SplitN(s, "/", 4)
	if len(parts) < 3 {
		return 0, fmt.Errorf("%w: %q", ErrBadTime, s)
	}
	year, err1 := strconv.Atoi(parts[0])
	month, err2 := strconv.Atoi(parts[1])
	day, err3 := strconv.Atoi(parts[2])
	if err := errors.Join(err1, err2, err3); err != nil || month < 1 || month > 12 || day < 1 || day > 31 {
		return 0, fmt.Errorf("%w: date in %q", ErrBadTime, s)
	}

	var sod float64
	if len(parts) == 4 && parts[3] != "" {
		hms := strings.Split(parts[3], ":")
		if len(hms) > 3 {
			return 0, fmt.Errorf("%w: time of day in %q", ErrBadTime, s)
		}
		scale := 3600.0
		for _, f := range hms {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil || v < 0 {
				return 0, fmt.Errorf("%w: time of day in %q", ErrBadTime, s)
			}
			sod += v * scale
			scale /= 60
		}
	}

	// Midnight JDs end in .5, so the MJD day number is exact.
	mjd := julian.CalendarGregorianToJD(year, month, float64(day)) - mjdOffset
	return math.Round(mjd)*secondsPerDay + sod, nil
}

// FormatTime renders MJD seconds in the CASA ymd form with millisecond precision.
func FormatTime(mjdSec float64) string {
	day := math.Floor(mjdSec / secondsPerDay)
	midnight := julian.JDToTime(day + mjdOffset).UTC().Round(24 * time.Hour)
	sod := mjdSec - day*secondsPerDay
	t := midnight.Add(time.Duration(math.Round(sod*1e3)) * time.Millisecond)
	return t.Format("2006/01/02/15:04:05.000")
}

// ParseTimeRange parses "start~end". A single instant gives a zero-width range.
func ParseTimeRange(s string) (TimeRange, error) {
	startStr, endStr, found := strings.Cut(s, "~")
	start, err := ParseTime(startStr)
	if err != nil {
		return TimeRange{}, err
	}
	if !found {
		return TimeRange{Start: start, End: start}, nil
	}
	end, err := ParseTime(endStr)
	if err != nil {
		return TimeRange{}, err
	}
	if end < start {
		return TimeRange{}, fmt.Errorf("%w: range %q ends before it starts", ErrBadTime, s)
	}
	return TimeRange{Start: start, End: end}, nil
}

// ParseTimeRanges parses a comma-separated list of ranges. Empty entries are
// skipped but at least one range is required.
func ParseTimeRanges(s string) ([]TimeRange, error) {
	var out []TimeRange
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		r, err := ParseTimeRange(part)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no range in %q", ErrBadTime, s)
	}
	return out, nil
}
