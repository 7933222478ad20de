// Package task implements the five task behaviors (http, process, file,
// system, database) behind the core.Runner contract. Behaviors are a
// closed set: adding a kind means adding a runner here and registering
// it, not subclassing anything.
package task

import (
	"fmt"
	"net/http"
	"time"

	"taskdeck/internal/core"
)

// Registry builds the runner set handed to the executor.
func Registry() map[core.Kind]core.Runner {
	return map[core.Kind]core.Runner{
		core.KindHTTP: &HTTPRunner{
			Client: &http.Client{Timeout: 5 * time.Minute},
		},
		core.KindProcess:  &ProcessRunner{},
		core.KindFile:     &FileRunner{},
		core.KindSystem:   &SystemRunner{},
		core.KindDatabase: &DatabaseRunner{},
	}
}

// Param helpers. Params arrive as map[string]any decoded from JSON, so
// numbers may be float64 and lists []any.

func stringParam(p map[string]any, key string) (string, bool) {
	v, ok := p[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func requireString(p map[string]any, key string) (string, error) {
	s, ok := stringParam(p, key)
	if !ok || s == "" {
		return "", fmt.Errorf("missing or empty %q", key)
	}
	return s, nil
}

func optionalString(p map[string]any, key, def string) string {
	if s, ok := stringParam(p, key); ok && s != "" {
		return s
	}
	return def
}

func boolParam(p map[string]any, key string) bool {
	v, ok := p[key]
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

func intParam(p map[string]any, key string) (int, bool) {
	switch v := p[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}

func stringSlice(p map[string]any, key string) ([]string, error) {
	v, ok := p[key]
	if !ok {
		return nil, nil
	}
	switch list := v.(type) {
	case []string:
		return list, nil
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%q must be a list of strings", key)
			}
			out = append(out, s)
		}
		return out, nil
	}
	return nil, fmt.Errorf("%q must be a list of strings", key)
}

func intSlice(p map[string]any, key string) ([]int, error) {
	v, ok := p[key]
	if !ok {
		return nil, nil
	}
	switch list := v.(type) {
	case []int:
		return list, nil
	case []any:
		out := make([]int, 0, len(list))
		for _, item := range list {
			switch n := item.(type) {
			case int:
				out = append(out, n)
			case float64:
				out = append(out, int(n))
			default:
				return nil, fmt.Errorf("%q must be a list of integers", key)
			}
		}
		return out, nil
	}
	return nil, fmt.Errorf("%q must be a list of integers", key)
}

func stringMap(p map[string]any, key string) (map[string]string, error) {
	v, ok := p[key]
	if !ok {
		return nil, nil
	}
	switch m := v.(type) {
	case map[string]string:
		return m, nil
	case map[string]any:
		out := make(map[string]string, len(m))
		for k, item := range m {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%q values must be strings", key)
			}
			out[k] = s
		}
		return out, nil
	}
	return nil, fmt.Errorf("%q must be a string map", key)
}

func failure(format string, args ...any) core.RunResult {
	return core.RunResult{Outcome: core.OutcomeFailure, Error: fmt.Sprintf(format, args...)}
}

func cancelled() core.RunResult {
	return core.RunResult{Outcome: core.OutcomeCancelled, Error: "cancelled"}
}
