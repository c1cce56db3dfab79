package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadFile overlays the YAML document at path onto c. Keys absent from the
// file keep their current values.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// SenderAllowed reports whether addr may issue commands. An empty allowlist
// admits everyone. Entries starting with "@" match a whole domain.
func SenderAllowed(allowed []string, addr string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if a == addr {
			return true
		}
		if len(a) > 1 && a[0] == '@' && len(addr) > len(a) && addr[len(addr)-len(a):] == a {
			return true
		}
	}
	return false
}
