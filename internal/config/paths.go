package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
)

const defaultBaseDir = ".bazaar"

// Paths holds resolved filesystem paths for bazaar data.
type Paths struct {
	Base   string // ~/.bazaar
	Config string // ~/.bazaar/config.yaml
	Data   string // ~/.bazaar/data
	Logs   string // ~/.bazaar/logs
}

// ResolvePaths computes all standard paths from the home directory.
// If BAZAAR_HOME is set, it overrides the default base directory.
func ResolvePaths() (Paths, error) {
	base := os.Getenv("BAZAAR_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Paths{}, err
		}
		base = filepath.Join(home, defaultBaseDir)
	}

	return Paths{
		Base:   base,
		Config: filepath.Join(base, "config.yaml"),
		Data:   filepath.Join(base, "data"),
		Logs:   filepath.Join(base, "logs"),
	}, nil
}

// EnsureDirs creates all standard directories if they don't exist.
func (p Paths) EnsureDirs() error {
	for _, d := range []string{p.Base, p.Data, p.Logs} {
		if err := os.MkdirAll(d, 0o700); err != nil {
			return err
		}
	}
	return nil
}

// StorePath returns the SQLite file for cfg, falling back to the data dir.
func (p Paths) StorePath(cfg StoreConfig) string {
	if cfg.Path != "" {
		return cfg.Path
	}
	return filepath.Join(p.Data, "bazaar.db")
}

// ParseConfigPath splits a dot-separated config path into segments and
// checks every segment names a field of Config by its file key. A path may
// end at a section or a value; nothing below a value is addressable.
func ParseConfigPath(raw string) ([]string, error) {
	if raw == "" {
		return nil, &ConfigError{Message: "empty config path"}
	}
	parts := strings.Split(raw, ".")
	t := reflect.TypeFor[Config]()
	for i, p := range parts {
		if p == "" {
			return nil, &ConfigError{Message: "config path contains empty segment"}
		}
		if t == nil {
			return nil, &ConfigError{Message: fmt.Sprintf("%s is a value, not a section", strings.Join(parts[:i], "."))}
		}
		f, ok := fieldByKey(t, p)
		if !ok {
			return nil, &ConfigError{Message: "unknown config key: " + strings.Join(parts[:i+1], ".")}
		}
		t = nil
		if f.Type.Kind() == reflect.Struct {
			t = f.Type
		}
	}
	return parts, nil
}

func fieldByKey(t reflect.Type, key string) (reflect.StructField, bool) {
	for i := range t.NumField() {
		f := t.Field(i)
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == key {
			return f, true
		}
	}
	return reflect.StructField{}, false
}

// ApplyValue sets value at path in a copy of raw and checks that the result
// still decodes and raises no validation issue at or under path. raw is
// left untouched; the updated copy is returned on success.
func ApplyValue(raw map[string]any, path []string, value any) (map[string]any, error) {
	next, err := cloneRaw(raw)
	if err != nil {
		return nil, err
	}
	SetValueAtPath(next, path, value)

	cfg, err := FromRaw(next)
	if err != nil {
		return nil, err
	}
	key := strings.Join(path, ".")
	for _, issue := range Validate(&cfg) {
		if issue.Path == key || strings.HasPrefix(issue.Path, key+".") || strings.HasPrefix(key, issue.Path+".") {
			return nil, &ConfigError{Message: issue.String()}
		}
	}
	return next, nil
}

// GetValueAtPath traverses a nested map using the given path segments.
func GetValueAtPath(root map[string]any, path []string) (any, bool) {
	current := any(root)
	for _, key := range path {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// SetValueAtPath sets a value in a nested map, creating intermediate maps as needed.
func SetValueAtPath(root map[string]any, path []string, value any) {
	current := root
	for _, key := range path[:len(path)-1] {
		next, ok := current[key]
		if !ok {
			next = map[string]any{}
			current[key] = next
		}
		m, ok := next.(map[string]any)
		if !ok {
			m = map[string]any{}
			current[key] = m
		}
		current = m
	}
	current[path[len(path)-1]] = value
}

// UnsetValueAtPath removes a value at the given path. Returns true if removed.
func UnsetValueAtPath(root map[string]any, path []string) bool {
	current := root
	for _, key := range path[:len(path)-1] {
		next, ok := current[key]
		if !ok {
			return false
		}
		m, ok := next.(map[string]any)
		if !ok {
			return false
		}
		current = m
	}
	last := path[len(path)-1]
	if _, ok := current[last]; !ok {
		return false
	}
	delete(current, last)
	return true
}
