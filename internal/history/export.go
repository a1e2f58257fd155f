// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package history

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.yaml.in/yaml/v3"
)

const exportLimit = 100000

// ExportYAML writes the matching reports to dir/export.yaml and returns
// the path written.
func (s *Store) ExportYAML(ctx context.Context, opts QueryOptions) (string, error) {
	opts.MaxResults = exportLimit
	reports, err := s.reports(ctx, opts)
	if err != nil {
		return "", fmt.Errorf("querying for export: %w", err)
	}

	path := filepath.Join(s.dir, "export.yaml")
	data, err := yaml.Marshal(reports)
	if err != nil {
		return "", fmt.Errorf("marshaling YAML: %w", err)
	}
	return path, os.WriteFile(path, data, 0o644)
}

// ExportJSON writes the matching reports to dir/export.json and returns
// the path written.
func (s *Store) ExportJSON(ctx context.Context, opts QueryOptions) (string, error) {
	opts.MaxResults = exportLimit
	reports, err := s.reports(ctx, opts)
	if err != nil {
		return "", fmt.Errorf("querying for export: %w", err)
	}

	path := filepath.Join(s.dir, "export.json")
	data, err := json.MarshalIndent(reports, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling JSON: %w", err)
	}
	return path, os.WriteFile(path, data, 0o644)
}
