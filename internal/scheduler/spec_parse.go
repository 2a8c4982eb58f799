package scheduler

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// SpecKind describes the normalized kind of a schedule string.
type SpecKind int

const (
	SpecCron SpecKind = iota
	SpecInterval
)

// ParsedSpec represents a parsed schedule string.
//
// Supported forms:
//   - Cron: "0 9 * * *", "*/30 * * * * *" (optional seconds), "@hourly", "@every 10m"
//   - Interval duration: "10m", "1h30m"
//   - Interval HH:MM: "00:10" (10 minutes), "02:30" (2 hours 30 minutes)
//   - Daily wall-clock time: "at:09:00" (becomes cron "0 9 * * *")
//
// Optional prefixes:
//   - "cron:" forces cron parsing
//   - "interval:" or "every:" forces interval parsing
type ParsedSpec struct {
	Kind   SpecKind
	Cron   string
	Every  time.Duration
	Source string // "cron" | "duration" | "hhmm" | "at"
}

// Spec returns the cron spec for either kind.
func (p ParsedSpec) Spec() string {
	if p.Kind == SpecInterval {
		return "@every " + p.Every.String()
	}
	return p.Cron
}

var reHHMM = regexp.MustCompile(`^\s*(\d{1,3}):(\d{2})\s*$`)

// ParseSchedule parses a schedule string into either a cron expression or an interval duration.
func ParseSchedule(raw string) (ParsedSpec, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ParsedSpec{}, fmt.Errorf("schedule required")
	}

	low := strings.ToLower(s)
	switch {
	case strings.HasPrefix(low, "cron:"):
		expr := strings.TrimSpace(s[len("cron:"):])
		if expr == "" {
			return ParsedSpec{}, fmt.Errorf("cron schedule required after 'cron:'")
		}
		return ParsedSpec{Kind: SpecCron, Cron: expr, Source: "cron"}, nil
	case strings.HasPrefix(low, "at:"):
		h, m, err := parseHHMM(strings.TrimSpace(s[len("at:"):]))
		if err != nil {
			return ParsedSpec{}, err
		}
		return ParsedSpec{Kind: SpecCron, Cron: fmt.Sprintf("%d %d * * *", m, h), Source: "at"}, nil
	case strings.HasPrefix(low, "interval:"):
		return intervalSpec(s[len("interval:"):])
	case strings.HasPrefix(low, "every:"):
		return intervalSpec(s[len("every:"):])
	}

	// Whitespace or a leading '@' means cron.
	if strings.ContainsAny(s, " \t\n\r") || strings.HasPrefix(s, "@") {
		return ParsedSpec{Kind: SpecCron, Cron: s, Source: "cron"}, nil
	}
	if ps, err := intervalSpec(s); err == nil {
		return ps, nil
	}
	return ParsedSpec{}, fmt.Errorf(
		"invalid schedule %q (use cron like '0 9 * * *', at:HH:MM like 'at:09:00', HH:MM like '00:10', or duration like '10m')",
		raw,
	)
}

func intervalSpec(v string) (ParsedSpec, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return ParsedSpec{}, fmt.Errorf("interval required")
	}
	if reHHMM.MatchString(v) {
		h, m, err := splitHHMM(v)
		if err != nil {
			return ParsedSpec{}, err
		}
		d := time.Duration(h)*time.Hour + time.Duration(m)*time.Minute
		if d <= 0 {
			return ParsedSpec{}, fmt.Errorf("interval must be > 0")
		}
		return ParsedSpec{Kind: SpecInterval, Every: d, Source: "hhmm"}, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return ParsedSpec{}, fmt.Errorf("invalid interval %q (use HH:MM or Go duration like '10m')", v)
	}
	if d <= 0 {
		return ParsedSpec{}, fmt.Errorf("interval must be > 0")
	}
	return ParsedSpec{Kind: SpecInterval, Every: d, Source: "duration"}, nil
}

// splitHHMM parses "H:MM" with hours up to 999 and minutes 0..59.
func splitHHMM(v string) (int, int, error) {
	m := reHHMM.FindStringSubmatch(v)
	if len(m) != 3 {
		return 0, 0, fmt.Errorf("invalid HH:MM %q", v)
	}
	hh, _ := strconv.Atoi(m[1])
	mm, _ := strconv.Atoi(m[2])
	if mm > 59 {
		return 0, 0, fmt.Errorf("invalid minutes in %q", v)
	}
	return hh, mm, nil
}

// parseHHMM parses a wall-clock time of day.
func parseHHMM(v string) (int, int, error) {
	h, m, err := splitHHMM(v)
	if err != nil {
		return 0, 0, err
	}
	if h > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", v)
	}
	return h, m, nil
}
