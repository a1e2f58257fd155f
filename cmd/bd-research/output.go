// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"fmt"
	"io"

	"go.yaml.in/yaml/v3"
)

func checkFormat(format string) error {
	switch format {
	case "markdown", "json", "yaml":
		return nil
	default:
		return fmt.Errorf("unsupported format %q: use markdown, json, or yaml", format)
	}
}

// markdowner is implemented by values with a terminal rendering.
type markdowner interface {
	Markdown() string
}

// writeReport encodes v in format. Markdown falls back to YAML for values
// without a Markdown method.
func writeReport(w io.Writer, v any, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "markdown":
		if m, ok := v.(markdowner); ok {
			_, err := io.WriteString(w, m.Markdown())
			return err
		}
		fallthrough
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return checkFormat(format)
	}
}
