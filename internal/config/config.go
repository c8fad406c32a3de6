// Package config loads CLI options from a TOML file and the environment
// and hot-reloads auxiliary files.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/pelletier/go-toml/v2"
	"github.com/smazurov/burstcam/internal/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// EnvPrefix is prepended to every env tag when reading environment variables.
const EnvPrefix = "BURSTCAM_"

var durationType = reflect.TypeOf(time.Duration(0))

// binding ties one options field to its sources.
type binding struct {
	field reflect.Value
	flag  string
	toml  string
	env   string
}

// LoadConfig fills the tagged fields of the struct opts points to.
// Precedence is CLI flag > environment > TOML file > existing value: flags
// the user set on cmd are never overwritten. The file is named by the
// string field Config; a missing file is not an error.
//
//	Port string `toml:"server.port" env:"SERVER_PORT"`
func LoadConfig(opts any, cmd *cobra.Command) error {
	v := reflect.ValueOf(opts).Elem()

	changed := map[string]bool{}
	if cmd != nil {
		cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })
	}

	var bindings []binding
	for i := range v.NumField() {
		sf := v.Type().Field(i)
		b := binding{
			field: v.Field(i),
			flag:  fieldNameToFlag(sf.Name),
			toml:  sf.Tag.Get("toml"),
			env:   sf.Tag.Get("env"),
		}
		if !changed[b.flag] && (b.toml != "" || b.env != "") {
			bindings = append(bindings, b)
		}
	}

	if path := configPath(v); path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return fmt.Errorf("failed to read config %s: %w", path, err)
		default:
			var doc map[string]any
			if err := toml.Unmarshal(data, &doc); err != nil {
				return fmt.Errorf("failed to parse TOML config: %w", err)
			}
			for _, b := range bindings {
				if b.toml == "" {
					continue
				}
				if value := getNestedValue(doc, b.toml); value != nil {
					setFieldValue(b.field, value)
				}
			}
		}
	}

	for _, b := range bindings {
		if b.env == "" {
			continue
		}
		if value := os.Getenv(EnvPrefix + b.env); value != "" {
			setFieldValueFromString(b.field, value)
		}
	}
	return nil
}

func configPath(v reflect.Value) string {
	if f := v.FieldByName("Config"); f.IsValid() && f.Kind() == reflect.String {
		return f.String()
	}
	return ""
}

// fieldNameToFlag converts a struct field name to the kebab-case flag name
// humacli derives. Acronyms stay together: "CaptureFITS" -> "capture-fits",
// "ExportFFmpeg" -> "export-f-fmpeg".
func fieldNameToFlag(fieldName string) string {
	runes := []rune(fieldName)
	var out []rune
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prevLower := unicode.IsLower(runes[i-1])
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if prevLower || nextLower {
				out = append(out, '-')
			}
		}
		out = append(out, unicode.ToLower(r))
	}
	return string(out)
}

// getNestedValue looks up a dotted path such as "capture.timeout".
func getNestedValue(data map[string]any, path string) any {
	head, rest, nested := strings.Cut(path, ".")
	if !nested {
		return data[head]
	}
	child, ok := data[head].(map[string]any)
	if !ok {
		return nil
	}
	return getNestedValue(child, rest)
}

// setFieldValue assigns a decoded TOML value. Durations accept strings
// ("250ms") or numbers of seconds; string fields accept arrays, joined
// with commas. Mismatched types are ignored.
func setFieldValue(field reflect.Value, value any) {
	if !field.CanSet() {
		return
	}

	if field.Type() == durationType {
		switch v := value.(type) {
		case string:
			setFieldValueFromString(field, v)
		case int64:
			field.SetInt(v * int64(time.Second))
		case float64:
			field.SetInt(int64(v * float64(time.Second)))
		}
		return
	}

	switch field.Kind() {
	case reflect.String:
		if list, ok := stringList(value); ok {
			field.SetString(strings.Join(list, ","))
		} else if s, ok := value.(string); ok {
			field.SetString(s)
		}
	case reflect.Bool:
		if b, ok := value.(bool); ok {
			field.SetBool(b)
		}
	case reflect.Int, reflect.Int64:
		if i, ok := value.(int64); ok {
			field.SetInt(i)
		}
	case reflect.Float64:
		switch f := value.(type) {
		case float64:
			field.SetFloat(f)
		case int64:
			field.SetFloat(float64(f))
		}
	case reflect.Slice:
		if list, ok := stringList(value); ok && field.Type().Elem().Kind() == reflect.String {
			field.Set(reflect.ValueOf(list))
		}
	}
}

// stringList converts a TOML array to strings, skipping non-string items.
func stringList(value any) ([]string, bool) {
	arr, ok := value.([]any)
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(arr))
	for _, item := range arr {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out, true
}

// setFieldValueFromString assigns an environment value. Slices are
// comma-separated; unparsable values are ignored.
func setFieldValueFromString(field reflect.Value, value string) {
	if !field.CanSet() {
		return
	}

	if field.Type() == durationType {
		if d, err := time.ParseDuration(value); err == nil {
			field.SetInt(int64(d))
		}
		return
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Bool:
		if b, err := strconv.ParseBool(value); err == nil {
			field.SetBool(b)
		}
	case reflect.Int, reflect.Int64:
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			field.SetInt(i)
		}
	case reflect.Float64:
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			field.SetFloat(f)
		}
	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}
}

// LoadLoggingConfig reads the [logging] table of the config file: "level"
// and "format" are global, every other key is a module level. Missing or
// unreadable files give the defaults, so subcommands can log before the
// full configuration is loaded.
func LoadLoggingConfig(configPath string) logging.Config {
	cfg := logging.Config{Level: "info", Format: "text", Modules: map[string]string{}}
	if configPath == "" {
		return cfg
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		return cfg
	}

	var doc struct {
		Logging map[string]string `toml:"logging"`
	}
	if err := toml.Unmarshal(data, &doc); err != nil {
		return cfg
	}
	for key, value := range doc.Logging {
		switch key {
		case "level":
			cfg.Level = value
		case "format":
			cfg.Format = value
		default:
			cfg.Modules[key] = value
		}
	}
	return cfg
}
