package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/spf13/cobra"
)

// captureOptions mirrors the shape of the CLI options struct.
type captureOptions struct {
	Config string

	Port            string        `toml:"server.port" env:"SERVER_PORT"`
	CaptureFITS     bool          `toml:"capture.fits" env:"CAPTURE_FITS"`
	CaptureMinFrame int           `toml:"capture.min_frames" env:"CAPTURE_MIN_FRAMES"`
	CaptureTimeout  time.Duration `toml:"capture.timeout" env:"CAPTURE_TIMEOUT"`
	CaptureFPS      float64       `toml:"capture.preview_fps" env:"CAPTURE_PREVIEW_FPS"`
	QuirksLegacy    string        `toml:"quirks.legacy_families" env:"QUIRKS_LEGACY_FAMILIES"`
	Families        []string      `toml:"quirks.families" env:"QUIRKS_FAMILIES"`
	Untagged        string
}

const captureTOML = `
[server]
port = ":9000"

[capture]
fits = true
min_frames = 8
timeout = "3s"
preview_fps = 12.5

[quirks]
legacy_families = ["MER", "MER2"]
families = ["A", "B"]
`

func writeTOML(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfigFromTOML(t *testing.T) {
	opts := &captureOptions{Config: writeTOML(t, captureTOML), Untagged: "keep"}
	if err := LoadConfig(opts, nil); err != nil {
		t.Fatal(err)
	}

	want := captureOptions{
		Config:          opts.Config,
		Port:            ":9000",
		CaptureFITS:     true,
		CaptureMinFrame: 8,
		CaptureTimeout:  3 * time.Second,
		CaptureFPS:      12.5,
		QuirksLegacy:    "MER,MER2",
		Families:        []string{"A", "B"},
		Untagged:        "keep",
	}
	if !reflect.DeepEqual(*opts, want) {
		t.Errorf("got  %+v\nwant %+v", *opts, want)
	}
}

func TestLoadConfigEnvOverridesTOML(t *testing.T) {
	t.Setenv(EnvPrefix+"CAPTURE_MIN_FRAMES", "3")
	t.Setenv(EnvPrefix+"CAPTURE_TIMEOUT", "500ms")
	t.Setenv(EnvPrefix+"CAPTURE_FITS", "false")
	t.Setenv(EnvPrefix+"QUIRKS_FAMILIES", "X, Y")

	opts := &captureOptions{Config: writeTOML(t, captureTOML)}
	if err := LoadConfig(opts, nil); err != nil {
		t.Fatal(err)
	}

	if opts.CaptureMinFrame != 3 || opts.CaptureTimeout != 500*time.Millisecond || opts.CaptureFITS {
		t.Errorf("env did not override TOML: %+v", *opts)
	}
	if !reflect.DeepEqual(opts.Families, []string{"X", "Y"}) {
		t.Errorf("Families = %v, want [X Y]", opts.Families)
	}
	if opts.Port != ":9000" {
		t.Errorf("Port = %q, want TOML value", opts.Port)
	}
}

func TestLoadConfigFlagsWin(t *testing.T) {
	t.Setenv(EnvPrefix+"SERVER_PORT", ":7000")

	cmd := &cobra.Command{Use: "test"}
	opts := &captureOptions{Config: writeTOML(t, captureTOML)}
	cmd.Flags().StringVar(&opts.Port, "port", ":8090", "")
	cmd.Flags().IntVar(&opts.CaptureMinFrame, "capture-min-frame", 5, "")
	if err := cmd.Flags().Parse([]string{"--port", ":1234"}); err != nil {
		t.Fatal(err)
	}

	if err := LoadConfig(opts, cmd); err != nil {
		t.Fatal(err)
	}
	if opts.Port != ":1234" {
		t.Errorf("Port = %q, flag should win over env and TOML", opts.Port)
	}
	if opts.CaptureMinFrame != 8 {
		t.Errorf("CaptureMinFrame = %d, unchanged flags take the TOML value", opts.CaptureMinFrame)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	opts := &captureOptions{Config: filepath.Join(t.TempDir(), "missing.toml"), Port: ":8090"}
	if err := LoadConfig(opts, nil); err != nil {
		t.Fatalf("missing file should not fail: %v", err)
	}
	if opts.Port != ":8090" {
		t.Errorf("defaults changed: %+v", *opts)
	}
}

func TestLoadConfigInvalidTOML(t *testing.T) {
	opts := &captureOptions{Config: writeTOML(t, "[capture\nfits = ")}
	if err := LoadConfig(opts, nil); err == nil {
		t.Error("expected parse error")
	}
}

func TestGetNestedValue(t *testing.T) {
	data := map[string]any{
		"capture": map[string]any{
			"fits":   true,
			"export": map[string]any{"codec": "h264"},
		},
		"root": "value",
	}
	tests := []struct {
		path string
		want any
	}{
		{"root", "value"},
		{"capture.fits", true},
		{"capture.export.codec", "h264"},
		{"capture.missing", nil},
		{"root.child", nil},
		{"missing.child", nil},
	}
	for _, tt := range tests {
		if got := getNestedValue(data, tt.path); got != tt.want {
			t.Errorf("getNestedValue(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestSetFieldValueDurations(t *testing.T) {
	var s struct{ D time.Duration }
	field := reflect.ValueOf(&s).Elem().Field(0)

	tests := []struct {
		in   any
		want time.Duration
	}{
		{"250ms", 250 * time.Millisecond},
		{int64(2), 2 * time.Second},
		{1.5, 1500 * time.Millisecond},
	}
	for _, tt := range tests {
		setFieldValue(field, tt.in)
		if s.D != tt.want {
			t.Errorf("setFieldValue(%v) = %v, want %v", tt.in, s.D, tt.want)
		}
	}
}

func TestSetFieldValueFromString(t *testing.T) {
	var s struct {
		S string
		B bool
		I int
		F float64
		L []string
	}
	v := reflect.ValueOf(&s).Elem()
	setFieldValueFromString(v.Field(0), "cam0")
	setFieldValueFromString(v.Field(1), "true")
	setFieldValueFromString(v.Field(2), "42")
	setFieldValueFromString(v.Field(3), "0.5")
	setFieldValueFromString(v.Field(4), "a, b")
	setFieldValueFromString(v.Field(2), "not a number")

	if s.S != "cam0" || !s.B || s.I != 42 || s.F != 0.5 || !reflect.DeepEqual(s.L, []string{"a", "b"}) {
		t.Errorf("unexpected values %+v", s)
	}
}

func TestLoadLoggingConfig(t *testing.T) {
	path := writeTOML(t, `
[logging]
level = "warn"
format = "json"
camera = "debug"
sink = "error"
`)
	cfg := LoadLoggingConfig(path)
	if cfg.Level != "warn" || cfg.Format != "json" {
		t.Errorf("global = %q/%q, want warn/json", cfg.Level, cfg.Format)
	}
	if cfg.Modules["camera"] != "debug" || cfg.Modules["sink"] != "error" {
		t.Errorf("modules = %v", cfg.Modules)
	}

	if def := LoadLoggingConfig(""); def.Level != "info" || def.Format != "text" {
		t.Errorf("defaults = %+v", def)
	}
}

func TestFieldNameToFlag(t *testing.T) {
	tests := []struct {
		field string
		want  string
	}{
		{"Port", "port"},
		{"LoggingLevel", "logging-level"},
		{"CaptureFITS", "capture-fits"},
		{"CaptureOpenRetry", "capture-open-retry"},
		{"ExportFFmpeg", "export-f-fmpeg"},
		{"CORSOrigin", "cors-origin"},
	}
	for _, tt := range tests {
		if got := fieldNameToFlag(tt.field); got != tt.want {
			t.Errorf("fieldNameToFlag(%q) = %q, want %q", tt.field, got, tt.want)
		}
	}
}
