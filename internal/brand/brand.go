// Package brand provides centralized naming constants for the toolkit.
// The identity is loaded from brand.json at compile time via go:embed so
// scripts and docs generators can read the same file.
package brand

import (
	_ "embed"
	"encoding/json"
	"os"
	"path/filepath"
)

//go:embed brand.json
var brandJSON []byte

// Brand holds the product identity.
type Brand struct {
	Name             string `json:"name"`
	LowerName        string `json:"lowerName"`
	Description      string `json:"description"`
	ConfigEnvPrefix  string `json:"configEnvPrefix"`
	DefaultConfigDir string `json:"defaultConfigDir"`
	DefaultStateDir  string `json:"defaultStateDir"`
	DefaultLogDir    string `json:"defaultLogDir"`
	BinaryName       string `json:"binaryName"`
	ConfigFileName   string `json:"configFileName"`
	HistoryFileName  string `json:"historyFileName"`
}

var b Brand

// Exported for convenient access without going through Get().
var (
	Name             string
	LowerName        string
	Description      string
	ConfigEnvPrefix  string
	DefaultConfigDir string
	DefaultStateDir  string
	DefaultLogDir    string
	BinaryName       string
	ConfigFileName   string
	HistoryFileName  string
)

// Version is set at build time via -ldflags.
var Version = "dev"

func init() {
	if err := json.Unmarshal(brandJSON, &b); err != nil {
		panic("failed to parse brand.json: " + err.Error())
	}

	Name = b.Name
	LowerName = b.LowerName
	Description = b.Description
	ConfigEnvPrefix = b.ConfigEnvPrefix
	DefaultConfigDir = b.DefaultConfigDir
	DefaultStateDir = b.DefaultStateDir
	DefaultLogDir = b.DefaultLogDir
	BinaryName = b.BinaryName
	ConfigFileName = b.ConfigFileName
	HistoryFileName = b.HistoryFileName
}

// Get returns the full brand identity.
func Get() Brand {
	return b
}

// DefaultConfigPath returns the default configuration file path,
// honoring the <PREFIX>_CONFIG environment override.
func DefaultConfigPath() string {
	if p := os.Getenv(ConfigEnvPrefix + "_CONFIG"); p != "" {
		return p
	}
	return filepath.Join(DefaultConfigDir, ConfigFileName)
}

// DefaultHistoryPath returns the default result history database path.
func DefaultHistoryPath() string {
	if p := os.Getenv(ConfigEnvPrefix + "_HISTORY"); p != "" {
		return p
	}
	return filepath.Join(DefaultStateDir, HistoryFileName)
}
