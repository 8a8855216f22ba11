// Package config builds the raw configuration tree for the ingest service
// from a YAML file and INGEST_* environment variables. The tree is decoded
// into core.Config by core.CfgxConfigProvider.
package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/wina-futureobjects/track-futura-new-sub007/core"
	"gopkg.in/yaml.v3"
)

// FileLoader reads a YAML document. A missing file is an error unless
// Optional is set.
type FileLoader struct {
	Path     string
	Optional bool
}

func (l FileLoader) LoadRaw(ctx context.Context) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := strings.TrimSpace(l.Path)
	if path == "" {
		return map[string]any{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if l.Optional && os.IsNotExist(err) {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	raw := map[string]any{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return normalize(raw), nil
}

// Chain merges the trees of its loaders in order. Later loaders win key by
// key; nested maps are merged rather than replaced.
type Chain []core.RawConfigLoader

func (c Chain) LoadRaw(ctx context.Context) (map[string]any, error) {
	out := map[string]any{}
	for _, loader := range c {
		if loader == nil {
			continue
		}
		raw, err := loader.LoadRaw(ctx)
		if err != nil {
			return nil, err
		}
		merge(out, raw)
	}
	return out, nil
}

// Load resolves the service configuration from path (optional) and the
// environment, layered over core.DefaultConfig.
func Load(ctx context.Context, path, envFile string) (core.Config, error) {
	chain := Chain{
		FileLoader{Path: path},
		EnvLoader{EnvFile: envFile},
	}
	return core.NewCfgxConfigProvider(chain).Load(ctx, core.DefaultConfig())
}

func merge(dst, src map[string]any) {
	for key, value := range src {
		incoming, ok := value.(map[string]any)
		if !ok {
			dst[key] = value
			continue
		}
		existing, ok := dst[key].(map[string]any)
		if !ok {
			existing = map[string]any{}
			dst[key] = existing
		}
		merge(existing, incoming)
	}
}

// normalize lower-cases keys so YAML authors can write Store or STORE.
func normalize(raw map[string]any) map[string]any {
	out := make(map[string]any, len(raw))
	for key, value := range raw {
		if nested, ok := value.(map[string]any); ok {
			value = normalize(nested)
		}
		out[strings.ToLower(strings.TrimSpace(key))] = value
	}
	return out
}

var (
	_ core.RawConfigLoader = FileLoader{}
	_ core.RawConfigLoader = Chain{}
	_ core.RawConfigLoader = EnvLoader{}
)
