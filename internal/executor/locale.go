package executor

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
	"github.com/tidwall/sjson"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/autopatchd/internal/instruction"
)

const pathMeta = `\.*?|#@!=<>%:`

var prettyOptions = &pretty.Options{Width: 80, Indent: "  "}

func validateJSON(data []byte) error {
	if !gjson.ValidBytes(data) {
		return errors.New("invalid JSON")
	}
	return nil
}

// formatJSON renders data with two-space indentation and a trailing newline.
func formatJSON(data []byte) []byte {
	return pretty.PrettyOptions(data, prettyOptions)
}

// keyPath splits a dotted translation key into escaped path segments.
func keyPath(key string) []string {
	parts := strings.Split(key, ".")
	for i, p := range parts {
		parts[i] = escapeSegment(p)
	}
	return parts
}

// escapeSegment escapes gjson/sjson path metacharacters in one key.
func escapeSegment(s string) string {
	if !strings.ContainsAny(s, pathMeta) {
		return s
	}
	var b strings.Builder
	for _, r := range s {
		if strings.ContainsRune(pathMeta, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// setNested sets a string at the nested key, replacing any non-object value
// found on the way with an empty object.
func setNested(data []byte, segments []string, value string) ([]byte, error) {
	var err error
	for i := 1; i < len(segments); i++ {
		prefix := strings.Join(segments[:i], ".")
		r := gjson.GetBytes(data, prefix)
		if r.Exists() && !r.IsObject() {
			data, err = sjson.SetRawBytes(data, prefix, []byte("{}"))
			if err != nil {
				return nil, err
			}
		}
	}
	return sjson.SetBytes(data, strings.Join(segments, "."), value)
}

func (b *batch) messagesDir() (string, error) {
	dir := filepath.Join(b.root, b.cfg.MessagesDir)
	info, err := os.Stat(dir)
	if err != nil {
		return "", writeErr(PhaseRead, dir, fmt.Errorf("messages directory not found: %w", err))
	}
	if !info.IsDir() {
		return "", writeErr(PhaseRead, dir, errors.New("messages path is not a directory"))
	}
	return dir, nil
}

func (b *batch) localeFile(dir, locale string) (string, error) {
	if locale == "" || strings.ContainsAny(locale, `/\`) || strings.Contains(locale, "..") {
		return "", fmt.Errorf("%w: invalid locale %q", instruction.ErrInvalid, locale)
	}
	return filepath.Join(dir, locale+".json"), nil
}

func (b *batch) I18nAddKey(_ context.Context, in *instruction.I18nAddKey) error {
	dir, err := b.messagesDir()
	if err != nil {
		return err
	}
	segments := keyPath(in.Key)
	path := strings.Join(segments, ".")

	locales := make([]string, 0, len(in.Translations))
	for l := range in.Translations {
		locales = append(locales, l)
	}
	sort.Strings(locales)

	for _, locale := range locales {
		value := in.Translations[locale]
		file, err := b.localeFile(dir, locale)
		if err != nil {
			return err
		}

		data, err := os.ReadFile(file)
		if err != nil {
			return writeErr(PhaseRead, file, err)
		}
		if err := validateJSON(data); err != nil {
			return writeErr(PhaseParse, file, err)
		}

		if existing := gjson.GetBytes(data, path); existing.Type == gjson.String && existing.Str == value {
			b.logger.Debug("translation already present",
				zap.String("locale", locale),
				zap.String("key", in.Key))
			continue
		}

		updated, err := setNested(data, segments, value)
		if err != nil {
			return writeErr(PhaseParse, file, err)
		}
		if err := b.files.write(file, formatJSON(updated)); err != nil {
			return err
		}

		written, err := os.ReadFile(file)
		if err != nil {
			return writeErr(PhaseVerify, file, err)
		}
		if got := gjson.GetBytes(written, path); got.Str != value {
			return writeErr(PhaseVerify, file, fmt.Errorf("expected %q at %s, found %q", value, in.Key, got.Str))
		}
		b.logger.Info("translation added",
			zap.String("locale", locale),
			zap.String("key", in.Key),
			zap.String("file", b.rel(file)))
	}
	return nil
}

func (b *batch) CloneLocaleFile(_ context.Context, in *instruction.CloneLocaleFile) error {
	dir, err := b.messagesDir()
	if err != nil {
		return err
	}
	target, err := b.localeFile(dir, in.Locale)
	if err != nil {
		return err
	}
	base, err := b.localeFile(dir, in.Base())
	if err != nil {
		return err
	}

	if _, err := os.Stat(target); err == nil {
		b.logger.Info("locale file exists, skipping clone", zap.String("file", b.rel(target)))
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return writeErr(PhaseRead, target, err)
	}

	data, err := os.ReadFile(base)
	if err != nil {
		return writeErr(PhaseRead, base, err)
	}

	out := data
	if in.Strategy == instruction.CloneEmpty {
		blank, err := blankTopLevel(data)
		if err != nil {
			b.logger.Warn("base locale is not a JSON object, copying it instead",
				zap.String("file", b.rel(base)),
				zap.Error(err))
		} else {
			out = blank
		}
	}

	if err := b.files.write(target, out); err != nil {
		return err
	}
	b.logger.Info("locale file created from base locale",
		zap.String("file", b.rel(target)),
		zap.String("base_locale", in.Base()),
		zap.String("strategy", string(in.Strategy)))
	return nil
}

// blankTopLevel returns an object with the same top-level keys as data, each
// set to "".
func blankTopLevel(data []byte) ([]byte, error) {
	if err := validateJSON(data); err != nil {
		return nil, err
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return nil, errors.New("base locale is not an object")
	}

	out := []byte("{}")
	var err error
	root.ForEach(func(key, _ gjson.Result) bool {
		out, err = sjson.SetBytes(out, escapeSegment(key.String()), "")
		return err == nil
	})
	if err != nil {
		return nil, err
	}
	return formatJSON(out), nil
}
