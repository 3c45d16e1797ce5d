package flagging

import (
	"errors"
	"math"
	"strings"
	"testing"
)

func TestParseTime(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{in: "1858/11/17/00:00:00", want: 0},
		{in: "2000/01/01/12:00:00", want: 51544*86400 + 43200},
		{in: "2000/01/01 12:00:00.5", want: 51544*86400 + 43200.5},
		{in: "2000/01/02", want: 51545 * 86400},
		{in: "2000/01/01/06:30", want: 51544*86400 + 6.5*3600},
	}
	for _, tt := range tests {
		got, err := ParseTime(tt.in)
		if err != nil {
			t.Fatalf("ParseTime(%q): %v", tt.in, err)
		}
		if math.Abs(got-tt.want) > 1e-6 {
			t.Fatalf("ParseTime(%q) = %f, want %f", tt.in, got, tt.want)
		}
	}
	for _, bad := range []string{"", "2000/13/01", "yesterday", "2000/01/01/aa:00"} {
		if _, err := ParseTime(bad); !errors.Is(err, ErrBadTime) {
			t.Fatalf("ParseTime(%q): expected ErrBadTime, got %v", bad, err)
		}
	}
}

func TestFormatTimeRoundTrip(t *testing.T) {
	in := "2012/03/04/12:34:56.789"
	sec, err := ParseTime(in)
	if err != nil {
		t.Fatal(err)
	}
	if got := FormatTime(sec); got != in {
		t.Fatalf("FormatTime = %q, want %q", got, in)
	}
}

func TestParseTimeRange(t *testing.T) {
	r, err := ParseTimeRange("2012/03/04/12:00:00~2012/03/04/12:05:00")
	if err != nil {
		t.Fatal(err)
	}
	if r.End-r.Start != 300 {
		t.Fatalf("unexpected span %v", r.End-r.Start)
	}
	if !r.Contains(r.Start) || !r.Contains(r.End) || r.Contains(r.End+1) {
		t.Fatalf("range bounds must be inclusive")
	}
	if _, err := ParseTimeRange("2012/03/04/12:05:00~2012/03/04/12:00:00"); !errors.Is(err, ErrBadTime) {
		t.Fatalf("expected reversed range to fail, got %v", err)
	}
	single, err := ParseTimeRange("2012/03/04/12:00:00")
	if err != nil || single.Start != single.End {
		t.Fatalf("single instant: %+v %v", single, err)
	}
}

func TestParseCommand(t *testing.T) {
	f, err := ParseCommand(`antenna='ea01,ea05' timerange='2012/03/04/12:00:00~2012/03/04/12:05:00' reason="SUBREFLECTOR_ERROR" spw='0,1'`)
	if err != nil {
		t.Fatal(err)
	}
	if len(f.Antennas) != 2 || f.Antennas[1] != "ea05" {
		t.Fatalf("antennas %v", f.Antennas)
	}
	if f.Reason != "SUBREFLECTOR_ERROR" || f.Extra["spw"] != "0,1" {
		t.Fatalf("unexpected flag %+v", f)
	}
	if !f.Applies("ea01") || f.Applies("ea02") {
		t.Fatalf("antenna selection wrong")
	}

	all, err := ParseCommand("timerange=2012/03/04/12:00:00~2012/03/04/12:05:00")
	if err != nil {
		t.Fatal(err)
	}
	if !all.Applies("anything") {
		t.Fatalf("empty antenna list must select all antennas")
	}

	for _, bad := range []string{"antenna='ea01'", "antenna='ea01", "justtext"} {
		if _, err := ParseCommand(bad); !errors.Is(err, ErrBadCommand) {
			t.Fatalf("ParseCommand(%q): expected ErrBadCommand, got %v", bad, err)
		}
	}
}

func TestParseCommandMergedRanges(t *testing.T) {
	f, err := ParseCommand("antenna='ea01' timerange='2012/03/04/12:00:00~2012/03/04/12:05:00,2012/03/04/13:00:00~2012/03/04/13:05:00' reason='ANTENNA_NOT_ON_SOURCE'")
	if err != nil {
		t.Fatalf("ParseCommand: %v", err)
	}
	if len(f.Ranges) != 2 {
		t.Fatalf("expected 2 ranges, got %+v", f.Ranges)
	}
	noon, _ := ParseTime("2012/03/04/12:00:00")
	times := []float64{
		noon + 60,   // first range
		noon + 1800, // between
		noon + 3720, // second range
		noon + 7200, // after
	}
	want := []bool{true, false, true, false}
	mask := List{f}.Mask("ea01", times)
	for i := range want {
		if mask[i] != want[i] {
			t.Fatalf("time %d: mask %v want %v", i, mask[i], want[i])
		}
	}
	if m := (List{f}).Mask("ea02", times); m[0] || m[2] {
		t.Fatalf("flag applied to unselected antenna: %v", m)
	}

	for _, bad := range []string{",", "2012/03/04/12:00:00~2012/03/04/12:05:00,bad"} {
		if _, err := ParseTimeRanges(bad); !errors.Is(err, ErrBadTime) {
			t.Fatalf("ParseTimeRanges(%q): expected ErrBadTime, got %v", bad, err)
		}
	}
}

func TestReadCommandsAndMask(t *testing.T) {
	src := `# online flags
antenna='ea01' timerange='2012/03/04/12:00:10~2012/03/04/12:00:20'

antenna='ea02' timerange='2012/03/04/12:00:00~2012/03/04/12:00:05'
`
	list, err := ReadCommands(strings.NewReader(src))
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 flags, got %d", len(list))
	}
	base, _ := ParseTime("2012/03/04/12:00:00")
	times := make([]float64, 30)
	for i := range times {
		times[i] = base + float64(i)
	}
	mask := list.Mask("ea01", times)
	for i, m := range mask {
		want := i >= 10 && i <= 20
		if m != want {
			t.Fatalf("time %d: mask %v want %v", i, m, want)
		}
	}

	_, err = ReadCommands(strings.NewReader("antenna='ea01' timerange='bad'\n"))
	if err == nil || !strings.Contains(err.Error(), "line 1") {
		t.Fatalf("expected line number in error, got %v", err)
	}
}
