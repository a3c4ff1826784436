//go:build plugindyn && linux

package plugin

import (
	"fmt"
	"os"
	"path/filepath"
	goplugin "plugin"
	"strings"

	"github.com/chriscow/listing-voice-go/internal/logging"
)

// DefaultPluginDir is searched when neither a directory nor LV_PLUGIN_PATH is set.
const DefaultPluginDir = "/usr/local/lib/listing-voice/plugins"

// LoadDynamicPlugins opens every .so file in pluginDir and calls its
// exported RegisterPlugins func() error. A missing directory is not an
// error.
func LoadDynamicPlugins(pluginDir string) error {
	if pluginDir == "" {
		pluginDir = os.Getenv("LV_PLUGIN_PATH")
	}
	if pluginDir == "" {
		pluginDir = DefaultPluginDir
	}

	if _, err := os.Stat(pluginDir); os.IsNotExist(err) {
		return nil
	}

	files, err := filepath.Glob(filepath.Join(pluginDir, "*.so"))
	if err != nil {
		return fmt.Errorf("search plugins in %s: %w", pluginDir, err)
	}

	log := logging.WithComponent("plugins")
	for _, file := range files {
		if err := loadPlugin(file); err != nil {
			return fmt.Errorf("load plugin %s: %w", file, err)
		}
		log.Info().
			Str("name", strings.TrimSuffix(filepath.Base(file), ".so")).
			Str("file", file).
			Msg("loaded plugin")
	}
	if len(files) > 0 {
		log.Info().Int("count", len(files)).Str("directory", pluginDir).Msg("loaded dynamic plugins")
	}
	return nil
}

func loadPlugin(file string) error {
	p, err := goplugin.Open(file)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	sym, err := p.Lookup("RegisterPlugins")
	if err != nil {
		return fmt.Errorf("missing RegisterPlugins: %w", err)
	}
	register, ok := sym.(func() error)
	if !ok {
		return fmt.Errorf("RegisterPlugins has signature %T, want func() error", sym)
	}
	return register()
}
