// Package cmd contains the application entry points: flag handling,
// logger setup, dependency wiring, and the serve loop. main.go stays a
// minimal shim, following the pattern of kubectl, hugo, and other
// standard Go CLI tools.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/koopa0/gitquery/internal/log"
)

// Execute is the main entry point for the gitquery binary.
// It handles flag parsing and command routing, and is designed to be
// called from main() so it stays testable.
func Execute() error {
	// Handle special flags before full initialization so --version
	// and --help work even when configuration is invalid.
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "version", "--version", "-v":
			printVersionInfo()
			return nil
		case "help", "--help", "-h":
			printHelp()
			return nil
		case "serve":
			return runServe()
		default:
			printHelp()
			return fmt.Errorf("unknown command: %s", os.Args[1])
		}
	}

	// Serving is the default behavior.
	return runServe()
}

// initLogger builds the structured logger.
//
// Log level is controlled by the DEBUG environment variable:
//   - DEBUG set (any value): debug level logging
//   - DEBUG not set: info level logging
func initLogger() log.Logger {
	cfg := log.Config{Level: slog.LevelInfo, JSON: true}
	if os.Getenv("DEBUG") != "" {
		cfg.Level = slog.LevelDebug
		cfg.AddSource = true
	}
	return log.New(cfg)
}

func printHelp() {
	fmt.Println("gitquery - chat with any public GitHub repository")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  gitquery [command]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve      Start the HTTP API server (default)")
	fmt.Println("  version    Show version information")
	fmt.Println("  help       Show this help")
	fmt.Println()
	fmt.Println("Environment:")
	fmt.Println("  GEMINI_API_KEY    Gemini API key (required)")
	fmt.Println("  GITHUB_TOKEN      GitHub token for higher rate limits (optional)")
	fmt.Println("  DEBUG             Enable debug logging")
}
