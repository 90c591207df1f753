package executor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/autopatchd/internal/instruction"
)

func TestApplyModification(t *testing.T) {
	tests := []struct {
		name    string
		content string
		mod     instruction.Modification
		want    string
	}{
		{
			name:    "replace literal first occurrence",
			content: "a.b a.b",
			mod:     instruction.Modification{Action: instruction.ModReplace, Search: instruction.Literal("a.b"), Replace: "c"},
			want:    "c a.b",
		},
		{
			name:    "replace regex with group",
			content: "const port = 3000",
			mod:     instruction.Modification{Action: instruction.ModReplace, Search: instruction.Regex(`port = (\d+)`, false), Replace: "port = Number(process.env.PORT ?? $1)"},
			want:    "const port = Number(process.env.PORT ?? 3000)",
		},
		{
			name:    "remove global regex",
			content: "x\n// debug\ny\n// debug\n",
			mod:     instruction.Modification{Action: instruction.ModRemove, Search: instruction.Regex(`// debug\n`, true)},
			want:    "x\ny\n",
		},
		{
			name:    "add after anchor",
			content: "import a\nrun()\n",
			mod:     instruction.Modification{Action: instruction.ModAdd, After: "import a", Replace: "import b"},
			want:    "import a\nimport b\nrun()\n",
		},
		{
			name:    "add before anchor",
			content: "import a\nrun()\n",
			mod:     instruction.Modification{Action: instruction.ModAdd, Before: "run()", Replace: "setup()"},
			want:    "import a\nsetup()\nrun()\n",
		},
		{
			name:    "add appends without anchor",
			content: "a",
			mod:     instruction.Modification{Action: instruction.ModAdd, Replace: "b"},
			want:    "a\nb",
		},
		{
			name:    "add already present",
			content: "import a\nimport b\n",
			mod:     instruction.Modification{Action: instruction.ModAdd, After: "import a", Replace: "import b"},
			want:    "import a\nimport b\n",
		},
		{
			name:    "add with missing anchor",
			content: "x",
			mod:     instruction.Modification{Action: instruction.ModAdd, After: "nope", Replace: "y"},
			want:    "x",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := applyModification(tt.content, tt.mod)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCodeModify_InvalidRegexRollsBack(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a.ts": "a\n", "b.ts": "b\n"})
	e, _ := newTestExecutor(t, Config{SkipChecks: true}, Deps{})

	res := e.Execute(context.Background(), root, instruction.List{
		&instruction.CodeModify{File: "a.ts", Modifications: []instruction.Modification{
			{Action: instruction.ModReplace, Search: instruction.Literal("a"), Replace: "A"},
		}},
		&instruction.CodeModify{File: "b.ts", Modifications: []instruction.Modification{
			{Action: instruction.ModReplace, Search: instruction.Regex(`(`, false), Replace: "B"},
		}},
	}, Options{})

	require.False(t, res.Success)
	assert.True(t, res.RolledBack)
	assert.Equal(t, "a\n", readFile(t, root, "a.ts"))
}

func TestEnvAddPlaceholder(t *testing.T) {
	t.Run("creates the file with comment", func(t *testing.T) {
		root := t.TempDir()
		e, _ := newTestExecutor(t, Config{SkipChecks: true}, Deps{})

		res := e.Execute(context.Background(), root, instruction.List{
			&instruction.EnvAddPlaceholder{Key: "OPENAI_API_KEY", Value: "FIXME", Comment: "# set by autopatch"},
		}, Options{})

		require.True(t, res.Success, res.Message)
		assert.Equal(t, "# set by autopatch\nOPENAI_API_KEY=FIXME\n", readFile(t, root, ".env.local"))
	})

	t.Run("appends a newline to unterminated content", func(t *testing.T) {
		root := t.TempDir()
		writeTree(t, root, map[string]string{".env": "A=1"})
		e, _ := newTestExecutor(t, Config{SkipChecks: true}, Deps{})

		res := e.Execute(context.Background(), root, instruction.List{
			&instruction.EnvAddPlaceholder{Key: "B", Value: "2", File: ".env"},
		}, Options{})

		require.True(t, res.Success, res.Message)
		assert.Equal(t, "A=1\nB=2\n", readFile(t, root, ".env"))
	})

	t.Run("indented existing key is detected", func(t *testing.T) {
		root := t.TempDir()
		writeTree(t, root, map[string]string{".env.local": "  B=old\n"})
		e, _ := newTestExecutor(t, Config{SkipChecks: true}, Deps{})

		res := e.Execute(context.Background(), root, instruction.List{
			&instruction.EnvAddPlaceholder{Key: "B", Value: "new"},
		}, Options{})

		assert.Equal(t, "no changes needed", res.Message)
		assert.Equal(t, "  B=old\n", readFile(t, root, ".env.local"))
	})
}
