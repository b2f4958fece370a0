package analyzer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectLanguage(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"cmd/main.go", "go"},
		{"lib/util.py", "python"},
		{"src/app.ts", "typescript"},
		{"src/app.tsx", "typescript"},
		{"server.rb", "ruby"},
		{"core.rs", "rust"},
		{"Main.java", "java"},
		{"notes.xyz", "generic"},
		{"Makefile", "generic"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DetectLanguage(tt.path), tt.path)
	}
}

func TestRegistryGetFallsBack(t *testing.T) {
	r := NewRegistry()

	a := r.Get("go")
	assert.Equal(t, "go", a.Language())

	// Unknown languages always resolve to the generic analyzer.
	a = r.Get("cobol")
	assert.Equal(t, "generic", a.Language())
}

type stubAnalyzer struct {
	*GenericAnalyzer
	lang string
}

func (s *stubAnalyzer) Language() string { return s.lang }

func TestRegistryRegisterOverrides(t *testing.T) {
	r := NewRegistry()
	custom := &stubAnalyzer{GenericAnalyzer: NewGeneric(), lang: "go"}
	r.Register(custom)
	assert.Same(t, Analyzer(custom), r.Get("go"))
	assert.Contains(t, r.Languages(), "go")
}

func TestIsSourceFile(t *testing.T) {
	assert.True(t, IsSourceFile("a/b/c.go"))
	assert.True(t, IsSourceFile("script.py"))
	assert.False(t, IsSourceFile("photo.png"))
	assert.False(t, IsSourceFile("archive.tar.gz"))
	assert.False(t, IsSourceFile("README.md"))
}
