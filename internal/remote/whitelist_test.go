package remote

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultWhitelist(t *testing.T) {
	w := DefaultWhitelist()

	tests := []struct {
		command string
		allowed bool
	}{
		{"pm2 restart whatsapp-bot-builder --update-env", true},
		{"pm2 restart", true},
		{"pm2 reload all", true},
		{"pm2 restart other-app", false},
		{"pm2 logs", true},
		{"pm2 list", true},
		{"pm2 delete whatsapp-bot-builder", false},
		{"caddy reload", true},
		{"caddy run", false},
		{"systemctl restart caddy", true},
		{"systemctl status n8n", true},
		{"systemctl restart sshd", false},
		{"systemctl restart", false},
		{"docker restart n8n", true},
		{"docker logs mcp-afrika-container", true},
		{"docker rm n8n", false},
		{"docker restart postgres", false},
		{"rm -rf /", false},
		{"", false},
		{"pm2", false},
		{"pm2 logs; rm -rf /", false},
		{"pm2 logs && curl evil", false},
		{"docker logs n8n $(id)", false},
	}
	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			d := w.Check(tt.command)
			assert.Equal(t, tt.allowed, d.Allowed, d.Reason)
			assert.Equal(t, tt.allowed, w.IsAllowed(tt.command))
			if !tt.allowed {
				assert.NotEmpty(t, d.Reason)
				assert.True(t, errors.Is(d.Err(), ErrCommandNotAllowed))
			} else {
				assert.NoError(t, d.Err())
				require.NotNil(t, d.Rule)
			}
		})
	}
}

func TestParseWhitelist(t *testing.T) {
	w, err := ParseWhitelist(`
[[rules]]
program = "nginx"
subcommands = ["-s"]
targets = ["reload"]
`)
	require.NoError(t, err)
	assert.True(t, w.IsAllowed("nginx -s reload"))
	assert.False(t, w.IsAllowed("nginx -s stop"))
	assert.False(t, w.IsAllowed("pm2 restart"))
	assert.Len(t, w.Rules(), 1)
}

func TestParseWhitelist_Invalid(t *testing.T) {
	tests := map[string]string{
		"syntax":          `[[rules]`,
		"unknown key":     "[[rules]]\nprogram = \"pm2\"\nsubcommands = [\"list\"]\nshell = true\n",
		"no subcommands":  "[[rules]]\nprogram = \"pm2\"\n",
		"missing program": "[[rules]]\nsubcommands = [\"list\"]\n",
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseWhitelist(data)
			assert.True(t, errors.Is(err, ErrInvalidWhitelist), "got %v", err)
		})
	}
}

func TestLoadWhitelist(t *testing.T) {
	w, err := LoadWhitelist("")
	require.NoError(t, err)
	assert.True(t, w.IsAllowed("caddy validate"))

	path := filepath.Join(t.TempDir(), "whitelist.toml")
	require.NoError(t, os.WriteFile(path, []byte("[[rules]]\nprogram = \"uptime\"\nsubcommands = [\"-p\"]\n"), 0o600))
	w, err = LoadWhitelist(path)
	require.NoError(t, err)
	assert.True(t, w.IsAllowed("uptime -p"))
	assert.False(t, w.IsAllowed("caddy validate"))

	_, err = LoadWhitelist(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}
