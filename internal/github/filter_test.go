package github

import "testing"

func TestIsRelevantFile(t *testing.T) {
	tests := []struct {
		name string
		path string
		want bool
	}{
		{"go source", "internal/server/server.go", true},
		{"typescript", "src/app.ts", true},
		{"tsx component", "src/components/Chat.tsx", true},
		{"markdown", "README.md", true},
		{"yaml", ".github/workflows/ci.yml", true},
		{"dockerfile at root", "Dockerfile", true},
		{"dockerfile nested", "deploy/Dockerfile", true},
		{"env example", ".env.example", true},
		{"binary image", "assets/logo.png", false},
		{"lockfile", "package-lock.json", true},
		{"no extension", "LICENSE", false},
		{"node_modules excluded", "node_modules/lodash/index.js", false},
		{"nested node_modules excluded", "web/node_modules/react/index.js", false},
		{"dist excluded", "dist/bundle.js", false},
		{"build excluded", "build/main.css", false},
		{"vendor excluded", "vendor/github.com/pkg/errors/errors.go", false},
		{"dist as filename prefix allowed", "distribution/main.go", true},
		{"hidden env file rejected", ".env", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRelevantFile(tt.path); got != tt.want {
				t.Errorf("IsRelevantFile(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}
