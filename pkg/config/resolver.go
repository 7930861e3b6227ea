package config

import (
	"fmt"
	"io"
	"strings"

	"cuelang.org/go/cue"
	"github.com/alecthomas/kong"
)

// Resolver returns a kong.Resolver that reads flag values from val.
//
// A flag named "body-limit" on the "serve" command is looked up at
// "serve.body_limit", then at the top-level "body_limit". Flags given on
// the command line always win.
func Resolver(val cue.Value) kong.Resolver {
	return kong.ResolverFunc(func(_ *kong.Context, parent *kong.Path, flag *kong.Flag) (any, error) {
		name := strings.ReplaceAll(flag.Name, "-", "_")

		paths := []string{name}
		if parent != nil && parent.Command != nil {
			paths = append([]string{parent.Command.Name + "." + name}, paths...)
		}

		for _, p := range paths {
			v := val.LookupPath(cue.ParsePath(p))
			if !v.Exists() {
				continue
			}
			s, err := scalar(v)
			if err != nil {
				return nil, fmt.Errorf("config %s: %w", p, err)
			}
			return s, nil
		}
		return nil, nil
	})
}

// KongLoader is a kong.ConfigurationLoader for YAML and JSON config files.
func KongLoader(r io.Reader) (kong.Resolver, error) {
	val, err := LoadValueFromReader(r)
	if err != nil {
		return nil, err
	}
	return Resolver(val), nil
}

// scalar renders a config value as the string kong would have seen on the
// command line. Lists are joined with ','.
func scalar(v cue.Value) (string, error) {
	switch v.IncompleteKind() {
	case cue.StringKind:
		return v.String()
	case cue.BoolKind:
		b, err := v.Bool()
		return fmt.Sprint(b), err
	case cue.IntKind:
		i, err := v.Int64()
		return fmt.Sprint(i), err
	case cue.FloatKind, cue.NumberKind:
		f, err := v.Float64()
		return fmt.Sprint(f), err
	case cue.ListKind:
		var items []any
		if err := v.Decode(&items); err != nil {
			return "", err
		}
		parts := make([]string, len(items))
		for i, item := range items {
			parts[i] = fmt.Sprint(item)
		}
		return strings.Join(parts, ","), nil
	default:
		return "", fmt.Errorf("unsupported value kind %v", v.IncompleteKind())
	}
}
