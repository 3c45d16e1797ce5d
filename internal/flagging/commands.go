package flagging

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrBadCommand reports a malformed flag command.
var ErrBadCommand = errors.New("flagging: bad command")

// Flag is one online flag: a set of antennas masked over one or more time
// ranges.
type Flag struct {
	// Antennas lists antenna names; empty means every antenna.
	Antennas []string
	Ranges   []TimeRange
	Reason   string
	// Extra keeps selection keys (spw, poln, ...) that are not used for masking.
	Extra map[string]string
}

// Applies reports whether the flag covers the named antenna.
func (f Flag) Applies(antenna string) bool {
	if len(f.Antennas) == 0 {
		return true
	}
	for _, a := range f.Antennas {
		if a == antenna {
			return true
		}
	}
	return false
}

// Contains reports whether t falls in any of the flag's ranges.
func (f Flag) Contains(t float64) bool {
	for _, r := range f.Ranges {
		if r.Contains(t) {
			return true
		}
	}
	return false
}

// List is an ordered set of online flags.
type List []Flag

// Mask returns a mask over times with every sample covered by a flag for
// the antenna set.
func (l List) Mask(antenna string, times []float64) []bool {
	mask := make([]bool, len(times))
	for _, f := range l {
		if !f.Applies(antenna) {
			continue
		}
		for i, t := range times {
			if f.Contains(t) {
				mask[i] = true
			}
		}
	}
	return mask
}

// ParseCommand parses a command such as
//
//	antenna='ea01,ea02' timerange='2012/03/04/12:00:00~2012/03/04/12:05:00' reason='SUBREFLECTOR_ERROR'
//
// A timerange is required. It may list several comma-separated ranges, as
// written when the flags of one antenna are merged into a single command.
func ParseCommand(cmd string) (Flag, error) {
	pairs, err := splitPairs(cmd)
	if err != nil {
		return Flag{}, err
	}
	var (
		f       Flag
		gotTime bool
	)
	for _, kv := range pairs {
		switch kv[0] {
		case "antenna":
			for _, a := range strings.Split(kv[1], ",") {
				if a = strings.TrimSpace(a); a != "" {
					f.Antennas = append(f.Antennas, a)
				}
			}
		case "timerange":
			rs, err := ParseTimeRanges(kv[1])
			if err != nil {
				return Flag{}, err
			}
			f.Ranges = append(f.Ranges, rs...)
			gotTime = true
		case "reason":
			f.Reason = kv[1]
		default:
			if f.Extra == nil {
				f.Extra = make(map[string]string)
			}
			f.Extra[kv[0]] = kv[1]
		}
	}
	if !gotTime {
		return Flag{}, fmt.Errorf("%w: no timerange in %q", ErrBadCommand, cmd)
	}
	return f, nil
}

// ReadCommands parses one command per line. Blank lines and lines starting
// with '#' are skipped.
func ReadCommands(r io.Reader) (List, error) {
	var list List
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		f, err := ParseCommand(text)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		list = append(list, f)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return list, nil
}

// splitPairs tokenises key=value pairs; values may be quoted with ' or ".
func splitPairs(cmd string) ([][2]string, error) {
	var out [][2]string
	s := strings.TrimSpace(cmd)
	for s != "" {
		eq := strings.IndexByte(s, '=')
		if eq <= 0 {
			return nil, fmt.Errorf("%w: expected key=value in %q", ErrBadCommand, cmd)
		}
		key := strings.ToLower(strings.TrimSpace(s[:eq]))
		if strings.ContainsAny(key, " \t'\"") {
			return nil, fmt.Errorf("%w: bad key %q", ErrBadCommand, key)
		}
		s = s[eq+1:]

		var val string
		if s != "" && (s[0] == '\'' || s[0] == '"') {
			end := strings.IndexByte(s[1:], s[0])
			if end < 0 {
				return nil, fmt.Errorf("%w: unterminated quote in %q", ErrBadCommand, cmd)
			}
			val = s[1 : end+1]
			s = s[end+2:]
		} else {
			end := strings.IndexAny(s, " \t")
			if end < 0 {
				end = len(s)
			}
			val = s[:end]
			s = s[end:]
		}
		out = append(out, [2]string{key, val})
		s = strings.TrimSpace(s)
	}
	return out, nil
}
