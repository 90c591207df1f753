package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionString(t *testing.T) {
	assert.Equal(t, "autopatchd dev (commit unknown, built unknown)", versionString())
}

func TestRootCmd_Subcommands(t *testing.T) {
	root := newRootCmd()
	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "mcp", "index", "version"} {
		assert.True(t, names[want], "missing subcommand %q", want)
	}

	f := root.PersistentFlags().Lookup("config")
	require.NotNil(t, f)
	assert.Equal(t, "c", f.Shorthand)
}

func TestVersionCmd(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})

	require.NoError(t, root.Execute())
	assert.Equal(t, versionString()+"\n", out.String())
}

func TestIndexCmd_RequiresKnowledge(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("KNOWLEDGE_DIR", "")
	root := newRootCmd()
	root.SetArgs([]string{"index"})

	err := root.Execute()
	require.ErrorIs(t, err, errNoKnowledge)
}
