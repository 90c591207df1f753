package sanitize

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentifier(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"already valid", "knowledge", "knowledge"},
		{"uppercase and spaces", "Support Docs", "support_docs"},
		{"path and dots", "docs/v2.1", "docs_v2_1"},
		{"collapses runs", "a -- b", "a_b"},
		{"trims edges", "__knowledge__", "knowledge"},
		{"unicode dropped", "café", "caf"},
		{"empty", "", DefaultIdentifier},
		{"only symbols", "!!!", DefaultIdentifier},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Identifier(tt.input))
		})
	}
}

func TestIdentifier_Long(t *testing.T) {
	a := Identifier(strings.Repeat("a", 100))
	b := Identifier(strings.Repeat("a", 99) + "b")

	assert.LessOrEqual(t, len(a), MaxIdentifierLength)
	assert.LessOrEqual(t, len(b), MaxIdentifierLength)
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, Identifier(strings.Repeat("a", 100)))
}

func TestWithin(t *testing.T) {
	root := filepath.Join(string(filepath.Separator), "srv", "app")

	tests := []struct {
		name    string
		rel     string
		want    string
		wantErr error
	}{
		{"relative", "messages/en.json", filepath.Join(root, "messages", "en.json"), nil},
		{"cleaned", "messages/../.env", filepath.Join(root, ".env"), nil},
		{"absolute inside", filepath.Join(root, ".env.example"), filepath.Join(root, ".env.example"), nil},
		{"root itself", ".", root, nil},
		{"escapes", "../etc/passwd", "", ErrPathTraversal},
		{"absolute outside", filepath.Join(string(filepath.Separator), "etc", "passwd"), "", ErrPathTraversal},
		{"sibling prefix", "../app-secrets/key", "", ErrPathTraversal},
		{"blank", "  ", "", ErrEmptyPath},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Within(root, tt.rel)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIsWithin(t *testing.T) {
	root := t.TempDir()
	assert.True(t, IsWithin(root, root))
	assert.True(t, IsWithin(root, filepath.Join(root, "a", "b.md")))
	assert.False(t, IsWithin(root, filepath.Dir(root)))
	assert.False(t, IsWithin(root, root+"-other"))
}
