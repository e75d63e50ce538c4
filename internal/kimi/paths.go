package kimi

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// localNamespace is the runtime's default execution namespace. Session
// directories for other namespaces carry the namespace name as a prefix.
const localNamespace = "local"

// ShareDir returns the runtime's data directory
// ($XDG_DATA_HOME/kimi, falling back to ~/.local/share/kimi).
func ShareDir() (string, error) {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "kimi"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", "kimi"), nil
}

// CanonicalWorkDir resolves a working directory to the canonical form the
// runtime hashes: absolute, symlinks resolved when possible.
func CanonicalWorkDir(workDir string) string {
	abs, err := filepath.Abs(workDir)
	if err != nil {
		abs = workDir
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved
	}
	return abs
}

// SessionsDirName returns the per-work-dir directory name under
// <share>/sessions: the md5 hex digest of the canonical work dir string,
// prefixed with the namespace when it is not the local one. This reproduces
// the runtime's own layout so session logs stay discoverable even when its
// metadata has been cleared.
func SessionsDirName(canonicalWorkDir, namespace string) string {
	sum := md5.Sum([]byte(canonicalWorkDir))
	digest := hex.EncodeToString(sum[:])
	if namespace == "" || namespace == localNamespace {
		return digest
	}
	return namespace + "_" + digest
}

// workDirMeta is the slice of the runtime's metadata.json this package cares
// about: where it put the sessions directory for a given work dir.
type workDirMeta struct {
	SessionsDir string `json:"sessions_dir"`
}

type metadataFile struct {
	WorkDirs map[string]workDirMeta `json:"work_dirs"`
}

// loadMetadata reads the runtime-owned metadata file. A missing or malformed
// file is treated as empty metadata; the path formula fallback covers it.
func loadMetadata() metadataFile {
	var meta metadataFile
	share, err := ShareDir()
	if err != nil {
		return meta
	}
	data, err := os.ReadFile(filepath.Join(share, "metadata.json"))
	if err != nil {
		return meta
	}
	_ = json.Unmarshal(data, &meta)
	return meta
}

// ContextFilePath resolves the context.jsonl log for (workDir, sessionID).
// Runtime metadata wins when it names an existing file; otherwise the md5
// path formula is tried. Returns "" when no log exists.
func ContextFilePath(workDir, sessionID string) string {
	canonical := CanonicalWorkDir(workDir)

	meta := loadMetadata()
	if wd, ok := meta.WorkDirs[canonical]; ok && wd.SessionsDir != "" {
		contextFile := filepath.Join(wd.SessionsDir, sessionID, "context.jsonl")
		if _, err := os.Stat(contextFile); err == nil {
			return contextFile
		}
	}

	share, err := ShareDir()
	if err != nil {
		return ""
	}
	contextFile := filepath.Join(share, "sessions", SessionsDirName(canonical, localNamespace), sessionID, "context.jsonl")
	if _, err := os.Stat(contextFile); err == nil {
		return contextFile
	}
	return ""
}
