// Package config provides functionality for managing configuration options
// for the application using command-line flags and environment variables.
package config

import (
	"encoding/json"
	"flag"
	"log"
	"os"
)

// Options holds the configuration values for the application.
type Options struct {
	// ServerURL is the base URL of the task-management backend.
	ServerURL string

	// SessionFile is the path of the durable session state file.
	SessionFile string

	// Addr defines the devserver's listening address (ip:port).
	Addr string

	// LogLevel sets the zap logging level.
	LogLevel string

	// Config is the path to the Config file.
	Config string
}

// options holds the current configuration values.
var options = &Options{}

// init initializes command-line flags and sets default values.
func init() {
	flag.StringVar(&options.ServerURL, "url", "http://localhost:8000", "backend base URL")
	flag.StringVar(&options.SessionFile, "session", "session.json", "path to session state file")
	flag.StringVar(&options.Addr, "a", "localhost:8000", "run devserver on ip:port")
	flag.StringVar(&options.LogLevel, "l", "Info", "log level")
	flag.StringVar(&options.Config, "config", "config.json", "path to config file")
	flag.StringVar(&options.Config, "c", "config.json", "path to config file (shorthand)")
}

// Parse parses the command-line flags and environment variables to set
// configuration values. It returns a pointer to the Options struct containing
// the parsed configuration values.
func Parse() *Options {
	flag.Parse()

	// Override flags with environment variables if set
	if configPath := os.Getenv("CONFIG"); configPath != "" {
		options.Config = configPath
	}

	if options.Config != "" {
		if _, err := os.Stat(options.Config); err == nil {
			data, err := os.ReadFile(options.Config)
			if err != nil {
				log.Fatalf("error while reading config file: %v", err)
			}
			if err := json.Unmarshal(data, options); err != nil {
				log.Fatalf("error while parsing config file: %v", err)
			}
		}
	}

	if serverURL := os.Getenv("SERVER_URL"); serverURL != "" {
		options.ServerURL = serverURL
	}

	if sessionFile := os.Getenv("SESSION_FILE"); sessionFile != "" {
		options.SessionFile = sessionFile
	}

	if addr := os.Getenv("SERVER_ADDRESS"); addr != "" {
		options.Addr = addr
	}

	return options
}
