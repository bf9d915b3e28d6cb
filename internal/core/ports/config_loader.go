package ports

import "github.com/whizrun/whiz/internal/core/domain"

// ConfigLoader defines the interface for loading whiz's task graph.
type ConfigLoader interface {
	// Load reads the configuration from the given working directory and returns the task graph.
	Load(cwd string) (*domain.Graph, error)

	// LoadFile reads the configuration from an explicit file path, for
	// --file overrides that bypass upward discovery.
	LoadFile(path string) (*domain.Graph, error)

	// DiscoverConfigPaths finds configuration file paths and their modification times.
	// Returns a map of config file paths to their mtime in UnixNano.
	DiscoverConfigPaths(cwd string) (map[string]int64, error)

	// DiscoverRoot walks up from cwd to find the directory containing whiz.yaml.
	DiscoverRoot(cwd string) (string, error)
}
