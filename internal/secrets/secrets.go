// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package secrets loads gateway credentials from a directory of plain-text
// files. The filename is the key name and the trimmed contents are the value.
//
// Recognized keys: tenant-id, client-id, client-secret.
package secrets

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/pdiddy/bd-research/pkg/types"
)

// Key names understood by Apply.
const (
	TenantID     = "tenant-id"
	ClientID     = "client-id"
	ClientSecret = "client-secret"
)

// Load reads all files in dir and returns a map of filename to trimmed contents.
// A missing directory is not an error; Load returns an empty map.
// Unreadable files are logged and skipped.
func Load(dir string, logger *zap.Logger) (map[string]string, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("reading secrets directory %s: %w", dir, err)
	}

	secrets := make(map[string]string)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			logger.Warn("could not read secret", zap.String("key", name), zap.Error(err))
			continue
		}
		if value := strings.TrimSpace(string(data)); value != "" {
			secrets[name] = value
		}
	}
	return secrets, nil
}

// Apply fills the credentials in cfg that are still empty from s.
// Values already set by config or environment win. It returns the keys used.
func Apply(s map[string]string, cfg *types.AuthConfig) []string {
	var used []string
	for _, f := range []struct {
		key string
		dst *string
	}{
		{TenantID, &cfg.TenantID},
		{ClientID, &cfg.ClientID},
		{ClientSecret, &cfg.ClientSecret},
	} {
		if *f.dst != "" {
			continue
		}
		if v, ok := s[f.key]; ok {
			*f.dst = v
			used = append(used, f.key)
		}
	}
	return used
}
