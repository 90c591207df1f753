package executor

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/autopatchd/internal/instruction"
	"github.com/fyrsmithlabs/autopatchd/internal/sanitize"
)

// resolve maps a workspace-relative path to an absolute path under root.
func (b *batch) resolve(rel string) (string, error) {
	abs, err := sanitize.Within(b.root, rel)
	switch {
	case errors.Is(err, sanitize.ErrEmptyPath):
		return "", fmt.Errorf("%w: empty path", instruction.ErrInvalid)
	case err != nil:
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, rel)
	}
	return abs, nil
}

func (b *batch) rel(abs string) string {
	if r, err := filepath.Rel(b.root, abs); err == nil {
		return r
	}
	return abs
}

// readOptional returns the file content, or "" and false when it is missing.
func readOptional(path string) (string, bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, writeErr(PhaseRead, path, err)
	}
	return string(data), true, nil
}

func (b *batch) EnvAddPlaceholder(_ context.Context, in *instruction.EnvAddPlaceholder) error {
	path, err := b.resolve(in.Target())
	if err != nil {
		return err
	}
	content, _, err := readOptional(path)
	if err != nil {
		return err
	}

	prefix := in.Key + "="
	for _, line := range strings.Split(content, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), prefix) {
			b.logger.Debug("env key already present", zap.String("key", in.Key), zap.String("file", b.rel(path)))
			return nil
		}
	}

	var sb strings.Builder
	sb.WriteString(content)
	if content != "" && !strings.HasSuffix(content, "\n") {
		sb.WriteString("\n")
	}
	if in.Comment != "" {
		sb.WriteString(in.Comment)
		sb.WriteString("\n")
	}
	sb.WriteString(prefix)
	sb.WriteString(in.Value)
	sb.WriteString("\n")

	if err := b.files.write(path, []byte(sb.String())); err != nil {
		return err
	}
	b.logger.Info("env placeholder added", zap.String("key", in.Key), zap.String("file", b.rel(path)))
	return nil
}

func (b *batch) CodeModify(_ context.Context, in *instruction.CodeModify) error {
	path, err := b.resolve(in.File)
	if err != nil {
		return err
	}
	content, existed, err := readOptional(path)
	if err != nil {
		return err
	}
	if !existed {
		b.logger.Warn("file does not exist, it will be created", zap.String("file", in.File))
	}

	updated := content
	for i, m := range in.Modifications {
		if m.Search.Inferred {
			b.logger.Debug("search pattern kind inferred from legacy string",
				zap.String("file", in.File),
				zap.Int("modification", i),
				zap.String("kind", string(m.Search.Kind)))
		}
		updated, err = applyModification(updated, m)
		if err != nil {
			return writeErr(PhaseParse, path, fmt.Errorf("modification %d: %w", i, err))
		}
	}

	if existed && updated == content {
		b.logger.Debug("code modifications produced no change", zap.String("file", in.File))
		return nil
	}
	if err := b.files.write(path, []byte(updated)); err != nil {
		return err
	}
	b.logger.Info("code modified",
		zap.String("file", in.File),
		zap.Int("modifications", len(in.Modifications)))
	return nil
}

// applyModification runs one textual transform. An add whose text is already
// present is skipped; an add whose anchor is missing changes nothing.
func applyModification(content string, m instruction.Modification) (string, error) {
	switch m.Action {
	case instruction.ModReplace:
		return m.Search.ReplaceIn(content, m.Replace)
	case instruction.ModRemove:
		return m.Search.ReplaceIn(content, "")
	case instruction.ModAdd:
		if m.Replace != "" && strings.Contains(content, m.Replace) {
			return content, nil
		}
		switch {
		case m.After != "":
			return strings.Replace(content, m.After, m.After+"\n"+m.Replace, 1), nil
		case m.Before != "":
			return strings.Replace(content, m.Before, m.Replace+"\n"+m.Before, 1), nil
		default:
			return content + "\n" + m.Replace, nil
		}
	}
	return "", fmt.Errorf("%w: unknown action %q", instruction.ErrInvalid, m.Action)
}

func (b *batch) CreateFile(_ context.Context, in *instruction.CreateFile) error {
	path, err := b.resolve(in.File)
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil {
		b.logger.Warn("file already exists, skipping creation", zap.String("file", in.File))
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return writeErr(PhaseRead, path, err)
	}

	if err := b.files.write(path, []byte(in.Content)); err != nil {
		return err
	}
	b.logger.Info("file created", zap.String("file", in.File), zap.Int("bytes", len(in.Content)))
	return nil
}
