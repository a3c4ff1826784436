//go:build !plugindyn || !linux

package plugin

import "errors"

// ErrDynamicUnsupported is returned when the binary was built without
// the plugindyn tag or for a platform other than Linux.
var ErrDynamicUnsupported = errors.New("dynamic plugin loading not supported (build with -tags=plugindyn on Linux)")

// LoadDynamicPlugins returns ErrDynamicUnsupported when a directory is
// given and does nothing otherwise.
func LoadDynamicPlugins(pluginDir string) error {
	if pluginDir == "" {
		return nil
	}
	return ErrDynamicUnsupported
}
