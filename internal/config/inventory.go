package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// yamlInventory is the shape of an external hosts file:
//
//	hosts:
//	  - name: web-1
//	    address: 10.0.0.10
//	    port: 22
//	    user: deploy
//	    tags: [web, prod]
type yamlInventory struct {
	Hosts []yamlHost `yaml:"hosts"`
}

type yamlHost struct {
	Name    string   `yaml:"name"`
	Address string   `yaml:"address"`
	Port    int      `yaml:"port"`
	User    string   `yaml:"user"`
	KeyFile string   `yaml:"key_file"`
	Tags    []string `yaml:"tags"`
}

// LoadInventoryYAML reads a YAML hosts file and returns inventory entries.
// Entries missing a name default to their address.
func LoadInventoryYAML(path string) ([]Host, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read inventory: %w", err)
	}
	return ParseInventoryYAML(data)
}

// ParseInventoryYAML parses YAML inventory bytes.
func ParseInventoryYAML(data []byte) ([]Host, error) {
	var inv yamlInventory
	if err := yaml.Unmarshal(data, &inv); err != nil {
		return nil, fmt.Errorf("failed to parse inventory: %w", err)
	}

	hosts := make([]Host, 0, len(inv.Hosts))
	for i, yh := range inv.Hosts {
		if yh.Address == "" {
			return nil, fmt.Errorf("inventory entry %d: address is required", i)
		}
		h := Host{
			Name:    yh.Name,
			Address: yh.Address,
			Port:    yh.Port,
			User:    yh.User,
			KeyFile: yh.KeyFile,
			Tags:    yh.Tags,
		}
		if h.Name == "" {
			h.Name = h.Address
		}
		if h.Port == 0 {
			h.Port = DefaultSSHPort
		}
		hosts = append(hosts, h)
	}
	return hosts, nil
}

// MergeInventory appends external hosts to the config inventory,
// skipping names that already exist (config file wins).
func (c *Config) MergeInventory(hosts []Host) {
	existing := make(map[string]bool, len(c.Hosts))
	for _, h := range c.Hosts {
		existing[h.Name] = true
	}
	for _, h := range hosts {
		if existing[h.Name] {
			continue
		}
		c.Hosts = append(c.Hosts, h)
		existing[h.Name] = true
	}
}
