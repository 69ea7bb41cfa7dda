package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsimple"
	"github.com/zclconf/go-cty/cty"
)

// LoadFile loads, decodes and validates an HCL config file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return LoadBytes(data, path)
}

// LoadBytes decodes and validates HCL config from bytes.
// The filename is used for diagnostics only.
func LoadBytes(data []byte, filename string) (*Config, error) {
	var cfg Config
	if err := hclsimple.Decode(filename, data, evalContext(), &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// evalContext exposes process environment variables to the config as
// env.<NAME>, so secrets and paths need not be hardcoded:
//
//	dest = env.BACKUP_DEST
func evalContext() *hcl.EvalContext {
	envVals := make(map[string]cty.Value)
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			continue
		}
		envVals[k] = cty.StringVal(v)
	}

	vars := map[string]cty.Value{}
	if len(envVals) > 0 {
		vars["env"] = cty.ObjectVal(envVals)
	}

	return &hcl.EvalContext{Variables: vars}
}
