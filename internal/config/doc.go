// Package config handles configuration loading for fold-console.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	gateway:
//	  token: "${FOLD_TOKEN}"
//
// Syntax: ${VAR_NAME}
//
// # Configuration Sections
//
// Gateway connection:
//
//	gateway:
//	  url: "https://gateway.example.com"
//	  token: "${FOLD_TOKEN}"      # or token_file: "~/.config/fold/token"
//
// Local transcript mirror:
//
//	database:
//	  path: "~/.local/share/fold/transcripts.db"
//
// Chat behavior:
//
//	chat:
//	  sender: "console-user"
//	  reload_timeout: "10s"
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Usage
//
//	cfg, err := config.Load("~/.config/fold/console.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
