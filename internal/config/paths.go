package config

import (
	"os"
	"path/filepath"
)

const appDirName = ".chatcore"

// DataDir returns the base data directory for chatcore.
func DataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, appDirName), nil
}

// ConfigPath returns the path to the configuration file.
func ConfigPath() (string, error) {
	dataDir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dataDir, "config.toml"), nil
}

// IdentityPath returns the path to the persisted identity record.
func IdentityPath() (string, error) {
	dataDir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dataDir, "identity.json"), nil
}

// ArchivePath returns the path to the local transcript archive database.
func ArchivePath() (string, error) {
	dataDir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dataDir, "transcripts.db"), nil
}
