package config

import (
	"os"
	"path/filepath"

	"github.com/legionhq/legion/internal/logger"
)

// RuntimeConfig holds the process's filesystem layout. Everything legion owns
// lives under one data directory (~/.legion by default, LEGION_HOME to
// override); the upstream runtime's files are located by internal/kimi.
type RuntimeConfig struct {
	// DataDir is the root of legion-owned state
	DataDir string
	// WorkDirsDir holds the default working directories allocated for
	// conversations created without an explicit work_dir
	WorkDirsDir string
	// ConversationsFile is the JSON store of conversation metadata
	ConversationsFile string
	// PIDFile is written by the serve command
	PIDFile string
}

// Runtime is the global runtime configuration instance
var Runtime *RuntimeConfig

func init() {
	Runtime = DetectRuntime()
}

// DetectRuntime builds the default layout and makes sure the data directory
// exists.
func DetectRuntime() *RuntimeConfig {
	dataDir := os.Getenv("LEGION_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			homeDir = os.Getenv("HOME")
			if homeDir == "" {
				homeDir = "."
			}
		}
		dataDir = filepath.Join(homeDir, ".legion")
	}

	rc := NewRuntimeConfig(dataDir)
	if err := os.MkdirAll(rc.DataDir, 0755); err != nil {
		logger.Warnf("Failed to create data directory %s: %v", rc.DataDir, err)
	}
	return rc
}

// NewRuntimeConfig lays out legion's files under the given data directory.
// Tests use this with a temp dir to get an isolated instance.
func NewRuntimeConfig(dataDir string) *RuntimeConfig {
	return &RuntimeConfig{
		DataDir:           dataDir,
		WorkDirsDir:       filepath.Join(dataDir, "workdirs"),
		ConversationsFile: filepath.Join(dataDir, "conversations.json"),
		PIDFile:           filepath.Join(dataDir, "legion.pid"),
	}
}
