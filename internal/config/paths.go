package config

import (
	"os"
	"path/filepath"
)

const defaultBaseDir = ".mirror"

// Paths holds resolved filesystem paths for mirror data.
type Paths struct {
	Base        string // ~/.mirror
	Config      string // ~/.mirror/config.yaml
	Credentials string // ~/.mirror/credentials
	Logs        string // ~/.mirror/logs
	Data        string // ~/.mirror/data
}

// ResolvePaths computes all standard paths from the home directory.
// If MIRROR_HOME is set, it overrides the default base directory.
func ResolvePaths() (Paths, error) {
	base := os.Getenv("MIRROR_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Paths{}, err
		}
		base = filepath.Join(home, defaultBaseDir)
	}

	return Paths{
		Base:        base,
		Config:      filepath.Join(base, "config.yaml"),
		Credentials: filepath.Join(base, "credentials"),
		Logs:        filepath.Join(base, "logs"),
		Data:        filepath.Join(base, "data"),
	}, nil
}

// EnsureDirs creates all standard directories if they don't exist.
func (p Paths) EnsureDirs() error {
	dirs := []string{p.Base, p.Credentials, p.Logs, p.Data}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o700); err != nil {
			return err
		}
	}
	return nil
}

// GoogleCredentials is the default location of the OAuth client secret.
func (p Paths) GoogleCredentials() string {
	return filepath.Join(p.Credentials, "google-credentials.json")
}

// GoogleToken is the default location of the cached calendar token.
func (p Paths) GoogleToken() string {
	return filepath.Join(p.Credentials, "google-token.json")
}

// JournalDB is the default location of the turn journal.
func (p Paths) JournalDB() string {
	return filepath.Join(p.Data, "mirror.db")
}

// LockFile guards against two servers sharing one base directory.
func (p Paths) LockFile() string {
	return filepath.Join(p.Base, "mirror.lock")
}

// ApplyPaths fills unset file locations from the resolved base directory.
func (c *Config) ApplyPaths(p Paths) {
	if c.Calendar.CredentialsPath == "" {
		c.Calendar.CredentialsPath = p.GoogleCredentials()
	}
	if c.Calendar.TokenPath == "" {
		c.Calendar.TokenPath = p.GoogleToken()
	}
	if c.Journal.Path == "" {
		c.Journal.Path = p.JournalDB()
	}
}
