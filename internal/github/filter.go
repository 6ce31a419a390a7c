package github

import (
	"path"
	"strings"
)

// relevantExtensions is the allow-list of file types worth indexing.
// Keys are extensions (with dot) or whole file names for extensionless
// conventionally-named files.
var relevantExtensions = map[string]bool{
	".js":   true,
	".jsx":  true,
	".ts":   true,
	".tsx":  true,
	".py":   true,
	".md":   true,
	".json": true,
	".html": true,
	".css":  true,
	".scss": true,
	".yml":  true,
	".yaml": true,
	".sh":   true,
	".xml":  true,
	".java": true,
	".go":   true,
	".php":  true,

	// Whole-name entries.
	"Dockerfile":   true,
	".env.example": true,
}

// excludedSegments are dependency and build-artifact directories whose
// contents are never indexed.
var excludedSegments = map[string]bool{
	"node_modules": true,
	"dist":         true,
	"build":        true,
	"vendor":       true,
}

// IsRelevantFile reports whether a repository path is worth indexing.
// Deterministic and pure: no I/O, no state.
func IsRelevantFile(filePath string) bool {
	for _, segment := range strings.Split(filePath, "/") {
		if excludedSegments[segment] {
			return false
		}
	}

	base := path.Base(filePath)
	if relevantExtensions[base] {
		return true
	}
	return relevantExtensions[path.Ext(base)]
}
