package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/cbroglie/mustache"
	"github.com/goccy/go-yaml"
)

// Output formats accepted by --format.
const (
	formatJSON     = "json"
	formatYAML     = "yaml"
	formatText     = "text"
	formatTemplate = "template"
)

// Output controls how a decoded form is printed. It is embedded by the
// decode and fetch commands.
type Output struct {
	Format   string `help:"Output format" short:"o" enum:"json,yaml,text,template" default:"json"`
	Template string `help:"Mustache template rendered with the decoded fields (requires --format=template). {{key}} is HTML-escaped; use {{{key}}} for the raw value." short:"t"`
}

// Validate is called by kong after flags are parsed.
func (o *Output) Validate() error {
	if o.Format == formatTemplate && o.Template == "" {
		return fmt.Errorf("--format=template requires --template")
	}
	return nil
}

func (o *Output) write(w io.Writer, form map[string]string) error {
	var out []byte
	var err error

	switch o.Format {
	case formatYAML:
		out, err = yaml.Marshal(form)
	case formatText:
		for _, k := range sortedKeys(form) {
			out = fmt.Appendf(out, "%s=%s\n", k, form[k])
		}
	case formatTemplate:
		var s string
		s, err = mustache.Render(o.Template, form)
		out = []byte(s)
		if len(out) > 0 && out[len(out)-1] != '\n' {
			out = append(out, '\n')
		}
	default:
		out, err = json.MarshalIndent(form, "", "  ")
		out = append(out, '\n')
	}
	if err != nil {
		return fmt.Errorf("failed to format output: %w", err)
	}

	_, err = w.Write(out)
	return err
}

func sortedKeys(form map[string]string) []string {
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
