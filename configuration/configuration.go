package configuration

import (
	"time"
)

type Configuration struct {
	HttpAddr          string        `usage:"HTTP address"`
	DocumentsDir      string        `usage:"source documents directory (pdf files)"`
	AnnotationsDir    string        `usage:"annotation archives directory"`
	TokensFile        string        `usage:"file with one access token per line"`
	Debug             bool          `usage:"accept the debug token"`
	LockTimeout       time.Duration `usage:"max wait for a document lock"`
	OrphanAge         time.Duration `usage:"remove temporary archives older than this at startup, 0 disables"`
	EnableCompression bool          `usage:"gzip responses when accepted"`
	LogLevel          string        `usage:"log level: debug, info, warn or error"`
	Version           bool          `usage:"show version and exit"`
	ShowBanner        bool          `usage:"show big banner"`
	ShowConfig        bool          `usage:"print config"`
}

func Default() Configuration {
	return Configuration{
		HttpAddr:          "127.0.0.1:5000",
		DocumentsDir:      "data/documents",
		AnnotationsDir:    "data/annotations",
		TokensFile:        "tokens.txt",
		LockTimeout:       10 * time.Second,
		OrphanAge:         time.Hour,
		EnableCompression: true,
		LogLevel:          "info",
		ShowBanner:        true,
	}
}
