package listing

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// Load decodes a JSON array of properties. Every property needs an id.
func Load(r io.Reader) ([]Property, error) {
	var props []Property
	if err := json.NewDecoder(r).Decode(&props); err != nil {
		return nil, fmt.Errorf("decode properties: %w", err)
	}
	for i, p := range props {
		if p.ID == "" {
			return nil, fmt.Errorf("property %d: missing id", i)
		}
	}
	return props, nil
}

// LoadFile reads properties from a JSON file.
func LoadFile(path string) ([]Property, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f)
}
