package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/alecthomas/kong"
)

// tomlLoader reads a TOML config file as a kong resolver. Global flags are
// top-level keys; command flags may also sit in a table named after the
// command. Keys may use dashes or underscores:
//
//	cache-file = "/var/lib/vidcache.db"
//	log_level = "debug"
//
//	[update]
//	workers = 4
//	exclude-ext = ["txt", "nfo"]
//
// Flags given on the command line take precedence.
func tomlLoader(r io.Reader) (kong.Resolver, error) {
	values := map[string]any{}
	if _, err := toml.NewDecoder(r).Decode(&values); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return kong.ResolverFunc(func(_ *kong.Context, parent *kong.Path, flag *kong.Flag) (any, error) {
		if parent != nil && parent.Command != nil {
			if table, ok := values[parent.Command.Name].(map[string]any); ok {
				if v, ok := lookup(table, flag.Name); ok {
					return v, nil
				}
			}
		}
		if v, ok := lookup(values, flag.Name); ok {
			return v, nil
		}
		return nil, nil
	}), nil
}

func lookup(values map[string]any, name string) (string, bool) {
	for _, key := range []string{name, strings.ReplaceAll(name, "-", "_")} {
		if v, ok := values[key]; ok {
			if _, isTable := v.(map[string]any); isTable {
				continue
			}
			return flagValue(v), true
		}
	}
	return "", false
}

// flagValue renders a TOML value the way it would be typed on the command
// line, so kong's own mappers parse it.
func flagValue(v any) string {
	switch v := v.(type) {
	case []any:
		parts := make([]string, len(v))
		for i, e := range v {
			parts[i] = fmt.Sprint(e)
		}
		return strings.Join(parts, ",")
	default:
		return fmt.Sprint(v)
	}
}
