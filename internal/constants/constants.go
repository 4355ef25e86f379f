// Package constants defines shared configuration constants.
package constants

var (
	// ConfigFile is the config file name inside DefaultDir.
	ConfigFile = "config.yaml"

	DefaultDir = ".dwarfscope"

	// ConfigDirEnv overrides the base directory holding DefaultDir.
	ConfigDirEnv = "DWARFSCOPE_CONFIG"

	DefaultLogLevel = "info"

	// DefaultMaxImages bounds how many opened binaries the image cache keeps.
	DefaultMaxImages = 8

	// DefaultMaxDepth bounds parent chain walks and definition searches.
	DefaultMaxDepth = 256
)
