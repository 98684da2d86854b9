package gitadapter

import (
	"testing"

	ignore "github.com/sabhiram/go-gitignore"
	"github.com/stretchr/testify/assert"
)

func TestFilesMatchIgnorePatterns(t *testing.T) {
	tests := []struct {
		name     string
		files    []string
		patterns []string
		useNilGI bool
		want     bool
	}{
		{name: "nil matcher returns false", files: []string{"foo.go"}, useNilGI: true, want: false},
		{name: "empty file list returns false", files: []string{}, patterns: []string{"*.md"}, want: false},
		{name: "all files match patterns", files: []string{"docs/README.md", "docs/guide.md"}, patterns: []string{"docs/"}, want: true},
		{name: "mixed files returns false", files: []string{"docs/README.md", "main.go"}, patterns: []string{"docs/"}, want: false},
		{name: ".plangoignore in file list always returns false", files: []string{".plangoignore"}, patterns: []string{".plangoignore"}, want: false},
		{name: "glob patterns work", files: []string{"README.md", "CHANGELOG.md"}, patterns: []string{"*.md"}, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gi *ignore.GitIgnore
			if !tt.useNilGI {
				gi = CompilePatterns(tt.patterns)
			}
			got := filesMatchIgnorePatterns(tt.files, gi)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIsDiffOnlyOrchestratorChanges(t *testing.T) {
	onlyOrchestrator := `diff --git a/.orchestrator/evidence/x.json b/.orchestrator/evidence/x.json
index 000..111 100644
--- a/.orchestrator/evidence/x.json
+++ b/.orchestrator/evidence/x.json
@@ -0,0 +1 @@
+{}
`
	mixed := onlyOrchestrator + `diff --git a/src/main.go b/src/main.go
index 222..333 100644
--- a/src/main.go
+++ b/src/main.go
@@ -1 +1 @@
-old
+new
`
	assert.True(t, IsDiffOnlyOrchestratorChanges(onlyOrchestrator))
	assert.False(t, IsDiffOnlyOrchestratorChanges(mixed))
	assert.False(t, IsDiffOnlyOrchestratorChanges(""))
}
