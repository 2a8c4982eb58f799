package config

import (
	"strings"
	"testing"
	"time"
)

func TestResolveDefaults(t *testing.T) {
	t.Parallel()
	s, err := Resolve(&Config{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	checks := []struct {
		name string
		got  any
		want any
	}{
		{"strategy", s.Strategy, StrategyImpact},
		{"poll", s.PollInterval, 120 * time.Second},
		{"timeout", s.RequestTimeout, 15 * time.Second},
		{"queue max", s.QueueMaxSize, 10},
		{"attempts", s.MaxAttempts, 5},
		{"retry", s.RetryInterval, 5 * time.Minute},
		{"advance", s.AdvanceEvery, 60 * time.Second},
		{"drain", s.DrainEvery, 60 * time.Second},
		{"seen cap", s.SeenCapacity, 100},
		{"publish attempts", s.PublishAttempts, 5},
		{"high", s.Thresholds.High, 0.40},
		{"mid", s.Thresholds.Mid, 0.30},
		{"low", s.Thresholds.Low, 0.25},
		{"high lev", s.Thresholds.HighLeverage, 3.0},
		{"mid lev", s.Thresholds.MidLeverage, 2.5},
		{"reset cron", s.ResetCron, "0 9 * * *"},
		{"tz", s.Location.String(), "America/New_York"},
		{"dashboard addr", s.Dashboard.Addr, "127.0.0.1:8080"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
}

func TestResolveClampsRequestTimeout(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw  string
		want time.Duration
	}{
		{"2s", 10 * time.Second},
		{"20s", 20 * time.Second},
		{"2m", 30 * time.Second},
	}
	for _, tt := range tests {
		s, err := Resolve(&Config{Monitor: MonitorConfig{RequestTimeout: tt.raw}})
		if err != nil {
			t.Fatalf("Resolve(%s): %v", tt.raw, err)
		}
		if s.RequestTimeout != tt.want {
			t.Fatalf("RequestTimeout(%s) = %v, want %v", tt.raw, s.RequestTimeout, tt.want)
		}
	}
}

func TestResolveRejectsInvalid(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{"bad duration", Config{Monitor: MonitorConfig{PollInterval: "soon"}}, "monitor.poll_interval"},
		{"unknown strategy", Config{Monitor: MonitorConfig{Strategy: "vibes"}}, "unknown strategy"},
		{"team without id", Config{Monitor: MonitorConfig{Strategy: StrategyTeamHomeRuns}}, "team_id"},
		{"threshold order", Config{Impact: ImpactConfig{High: 0.2, Mid: 0.3}}, "high >= mid >= low"},
		{"bad tz", Config{Status: StatusConfig{Timezone: "Mars/Olympus"}}, "status.timezone"},
		{"bad required", Config{Channels: ChannelsConfig{Required: []string{"fax"}}}, "unknown channel"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := tt.cfg
			_, err := Resolve(&cfg)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Resolve err = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw     string
		want    time.Duration
		wantErr bool
	}{
		{raw: "", want: 0},
		{raw: "120", want: 2 * time.Minute},
		{raw: " 90s ", want: 90 * time.Second},
		{raw: "1h30m", want: 90 * time.Minute},
		{raw: "-5s", wantErr: true},
		{raw: "-1", wantErr: true},
		{raw: "soon", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseDurationField("monitor.poll_interval", tt.raw)
		if tt.wantErr {
			if err == nil || !strings.Contains(err.Error(), "monitor.poll_interval") {
				t.Errorf("%q: err = %v, want path-prefixed error", tt.raw, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("%q = %v, %v; want %v", tt.raw, got, err, tt.want)
		}
	}
}

func TestToJSONFormatDetection(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name, file, data, want string
	}{
		{"json by extension", "c.json", `{"a":1}`, `{"a":1}`},
		{"yaml by extension", "c.yml", "a: 1\n", `{"a":1}`},
		{"sniffed json", "config", `  {"a":1}`, `  {"a":1}`},
		{"sniffed yaml", "config", "a: 1\n", `{"a":1}`},
		{"empty yaml", "c.yaml", "", `{}`},
	}
	for _, tt := range tests {
		got, err := toJSON(tt.file, []byte(tt.data))
		if err != nil {
			t.Fatalf("%s: %v", tt.name, err)
		}
		if string(got) != tt.want {
			t.Errorf("%s = %s, want %s", tt.name, got, tt.want)
		}
	}
}
