package instruction

import (
	"context"
	"fmt"
	"strings"
)

// Type is the wire discriminator of an instruction variant.
type Type string

const (
	TypeI18nAddKey        Type = "i18n-add-key"
	TypeCloneLocaleFile   Type = "clone-locale-file"
	TypeEnvAddPlaceholder Type = "env-add-placeholder"
	TypeCodeModify        Type = "code-modify"
	TypeCreateFile        Type = "create-file"
	TypeHetznerCommand    Type = "hetzner-command"
	TypeSupabaseMigration Type = "supabase-migration"
	TypeSupabaseRLSPolicy Type = "supabase-rls-policy"
)

// Types lists every variant in declaration order.
var Types = []Type{
	TypeI18nAddKey,
	TypeCloneLocaleFile,
	TypeEnvAddPlaceholder,
	TypeCodeModify,
	TypeCreateFile,
	TypeHetznerCommand,
	TypeSupabaseMigration,
	TypeSupabaseRLSPolicy,
}

// Instruction is one typed unit of remediation work.
//
// The interface is sealed: only the variants in this package implement it.
type Instruction interface {
	// Type returns the wire discriminator.
	Type() Type

	// Validate checks that the payload carries its required fields.
	Validate() error

	accept(ctx context.Context, h Handler) error
}

// Handler applies instructions. Implementations provide one method per variant.
type Handler interface {
	I18nAddKey(ctx context.Context, in *I18nAddKey) error
	CloneLocaleFile(ctx context.Context, in *CloneLocaleFile) error
	EnvAddPlaceholder(ctx context.Context, in *EnvAddPlaceholder) error
	CodeModify(ctx context.Context, in *CodeModify) error
	CreateFile(ctx context.Context, in *CreateFile) error
	HetznerCommand(ctx context.Context, in *HetznerCommand) error
	SupabaseMigration(ctx context.Context, in *SupabaseMigration) error
	SupabaseRLSPolicy(ctx context.Context, in *SupabaseRLSPolicy) error
}

// Apply dispatches in to the matching Handler method.
func Apply(ctx context.Context, h Handler, in Instruction) error {
	if in == nil {
		return fmt.Errorf("%w: nil instruction", ErrInvalid)
	}
	return in.accept(ctx, h)
}

// Gated is implemented by instructions that may require human sign-off.
type Gated interface {
	Instruction
	ApprovalRequired() bool
}

// RequiresApproval reports whether in must pass the approval gate.
func RequiresApproval(in Instruction) bool {
	g, ok := in.(Gated)
	return ok && g.ApprovalRequired()
}

// Remote reports whether in acts on infrastructure outside the source tree.
func Remote(in Instruction) bool {
	switch in.(type) {
	case *HetznerCommand, *SupabaseMigration, *SupabaseRLSPolicy:
		return true
	}
	return false
}

// I18nAddKey inserts a nested translation key into every listed locale file.
type I18nAddKey struct {
	// Key is a dotted path such as "common.hello".
	Key          string            `json:"key"`
	Translations map[string]string `json:"translations"`
}

func (*I18nAddKey) Type() Type { return TypeI18nAddKey }

func (i *I18nAddKey) Validate() error {
	if strings.TrimSpace(i.Key) == "" {
		return fmt.Errorf("%w: %s requires key", ErrInvalid, i.Type())
	}
	if len(i.Translations) == 0 {
		return fmt.Errorf("%w: %s requires translations", ErrInvalid, i.Type())
	}
	return nil
}

func (i *I18nAddKey) accept(ctx context.Context, h Handler) error { return h.I18nAddKey(ctx, i) }

// CloneStrategy controls how a missing locale file is derived from its base.
type CloneStrategy string

const (
	CloneCopy  CloneStrategy = "copy"
	CloneEmpty CloneStrategy = "empty"
)

// DefaultBaseLocale is used when CloneLocaleFile.BaseLocale is empty.
const DefaultBaseLocale = "de"

// CloneLocaleFile creates messages/<Locale>.json from a base locale.
type CloneLocaleFile struct {
	Locale     string        `json:"locale"`
	BaseLocale string        `json:"baseLocale,omitempty"`
	Strategy   CloneStrategy `json:"strategy,omitempty"`
}

func (*CloneLocaleFile) Type() Type { return TypeCloneLocaleFile }

func (c *CloneLocaleFile) Validate() error {
	if strings.TrimSpace(c.Locale) == "" {
		return fmt.Errorf("%w: %s requires locale", ErrInvalid, c.Type())
	}
	switch c.Strategy {
	case "", CloneCopy, CloneEmpty:
	default:
		return fmt.Errorf("%w: unknown clone strategy %q", ErrInvalid, c.Strategy)
	}
	return nil
}

// Base returns the base locale, defaulting to DefaultBaseLocale.
func (c *CloneLocaleFile) Base() string {
	if c.BaseLocale == "" {
		return DefaultBaseLocale
	}
	return c.BaseLocale
}

func (c *CloneLocaleFile) accept(ctx context.Context, h Handler) error {
	return h.CloneLocaleFile(ctx, c)
}

// DefaultEnvFile is the env file used when EnvAddPlaceholder.File is empty.
const DefaultEnvFile = ".env.local"

// EnvAddPlaceholder appends KEY=value to an env file unless the key exists.
type EnvAddPlaceholder struct {
	Key     string `json:"key"`
	Value   string `json:"value"`
	Comment string `json:"comment,omitempty"`
	File    string `json:"file,omitempty"`
}

func (*EnvAddPlaceholder) Type() Type { return TypeEnvAddPlaceholder }

func (e *EnvAddPlaceholder) Validate() error {
	if strings.TrimSpace(e.Key) == "" || strings.ContainsAny(e.Key, "=\n") {
		return fmt.Errorf("%w: %s requires a key without '=' or newlines", ErrInvalid, e.Type())
	}
	return nil
}

// Target returns the env file path relative to the workspace root.
func (e *EnvAddPlaceholder) Target() string {
	if e.File == "" {
		return DefaultEnvFile
	}
	return e.File
}

func (e *EnvAddPlaceholder) accept(ctx context.Context, h Handler) error {
	return h.EnvAddPlaceholder(ctx, e)
}

// ModAction is the kind of textual transform in a code-modify instruction.
type ModAction string

const (
	ModReplace ModAction = "replace"
	ModRemove  ModAction = "remove"
	ModAdd     ModAction = "add"
)

// Modification is one textual transform. Search applies to replace and
// remove; add inserts Replace after After, before Before, or at the end.
type Modification struct {
	Action      ModAction `json:"action"`
	Search      Pattern   `json:"search,omitzero"`
	Replace     string    `json:"replace,omitempty"`
	After       string    `json:"after,omitempty"`
	Before      string    `json:"before,omitempty"`
	Description string    `json:"description,omitempty"`
}

// CodeModify applies ordered modifications to one file, creating it if missing.
type CodeModify struct {
	File          string         `json:"file"`
	Modifications []Modification `json:"modifications"`
}

func (*CodeModify) Type() Type { return TypeCodeModify }

func (c *CodeModify) Validate() error {
	if strings.TrimSpace(c.File) == "" {
		return fmt.Errorf("%w: %s requires file", ErrInvalid, c.Type())
	}
	for i, m := range c.Modifications {
		switch m.Action {
		case ModReplace, ModRemove:
			if m.Search.Value == "" {
				return fmt.Errorf("%w: modification %d (%s) requires search", ErrInvalid, i, m.Action)
			}
		case ModAdd:
		default:
			return fmt.Errorf("%w: modification %d has unknown action %q", ErrInvalid, i, m.Action)
		}
	}
	return nil
}

func (c *CodeModify) accept(ctx context.Context, h Handler) error { return h.CodeModify(ctx, c) }

// CreateFile writes a new file; an existing file is left untouched.
type CreateFile struct {
	File    string `json:"file"`
	Content string `json:"content"`
}

func (*CreateFile) Type() Type { return TypeCreateFile }

func (c *CreateFile) Validate() error {
	if strings.TrimSpace(c.File) == "" {
		return fmt.Errorf("%w: %s requires file", ErrInvalid, c.Type())
	}
	return nil
}

func (c *CreateFile) accept(ctx context.Context, h Handler) error { return h.CreateFile(ctx, c) }

// HetznerCommand runs a shell command on the production host over SSH.
type HetznerCommand struct {
	Command          string `json:"command"`
	Description      string `json:"description,omitempty"`
	RequiresApproval bool   `json:"requiresApproval"`
	WhitelistCheck   bool   `json:"whitelistCheck"`
}

func (*HetznerCommand) Type() Type { return TypeHetznerCommand }

func (c *HetznerCommand) Validate() error {
	if strings.TrimSpace(c.Command) == "" {
		return fmt.Errorf("%w: %s requires command", ErrInvalid, c.Type())
	}
	return nil
}

func (c *HetznerCommand) ApprovalRequired() bool { return c.RequiresApproval }

func (c *HetznerCommand) accept(ctx context.Context, h Handler) error {
	return h.HetznerCommand(ctx, c)
}

// SupabaseMigration persists a timestamped migration and runs it via RPC.
type SupabaseMigration struct {
	SQL              string `json:"sql"`
	MigrationName    string `json:"migrationName"`
	Description      string `json:"description,omitempty"`
	RequiresApproval bool   `json:"requiresApproval"`
}

func (*SupabaseMigration) Type() Type { return TypeSupabaseMigration }

func (m *SupabaseMigration) Validate() error {
	if strings.TrimSpace(m.SQL) == "" {
		return fmt.Errorf("%w: %s requires sql", ErrInvalid, m.Type())
	}
	if strings.TrimSpace(m.MigrationName) == "" || strings.ContainsAny(m.MigrationName, `/\`) {
		return fmt.Errorf("%w: %s requires a plain migrationName", ErrInvalid, m.Type())
	}
	return nil
}

func (m *SupabaseMigration) ApprovalRequired() bool { return m.RequiresApproval }

func (m *SupabaseMigration) accept(ctx context.Context, h Handler) error {
	return h.SupabaseMigration(ctx, m)
}

// SupabaseRLSPolicy runs row-level-security DDL via the privileged RPC.
type SupabaseRLSPolicy struct {
	PolicyName       string `json:"policyName"`
	TableName        string `json:"tableName"`
	SQL              string `json:"sql"`
	Description      string `json:"description,omitempty"`
	RequiresApproval bool   `json:"requiresApproval"`
}

func (*SupabaseRLSPolicy) Type() Type { return TypeSupabaseRLSPolicy }

func (p *SupabaseRLSPolicy) Validate() error {
	if strings.TrimSpace(p.SQL) == "" {
		return fmt.Errorf("%w: %s requires sql", ErrInvalid, p.Type())
	}
	if strings.TrimSpace(p.PolicyName) == "" {
		return fmt.Errorf("%w: %s requires policyName", ErrInvalid, p.Type())
	}
	return nil
}

func (p *SupabaseRLSPolicy) ApprovalRequired() bool { return p.RequiresApproval }

func (p *SupabaseRLSPolicy) accept(ctx context.Context, h Handler) error {
	return h.SupabaseRLSPolicy(ctx, p)
}

// Describe returns a one-line human summary of in, used in approval requests
// and error annotations.
func Describe(in Instruction) string {
	switch v := in.(type) {
	case *I18nAddKey:
		return fmt.Sprintf("add translation key %s (%d locales)", v.Key, len(v.Translations))
	case *CloneLocaleFile:
		return fmt.Sprintf("create locale %s from %s", v.Locale, v.Base())
	case *EnvAddPlaceholder:
		return fmt.Sprintf("add env placeholder %s to %s", v.Key, v.Target())
	case *CodeModify:
		return fmt.Sprintf("modify %s (%d changes)", v.File, len(v.Modifications))
	case *CreateFile:
		return fmt.Sprintf("create %s", v.File)
	case *HetznerCommand:
		if v.Description != "" {
			return v.Description
		}
		return fmt.Sprintf("run %q on production host", v.Command)
	case *SupabaseMigration:
		if v.Description != "" {
			return v.Description
		}
		return fmt.Sprintf("apply migration %s", v.MigrationName)
	case *SupabaseRLSPolicy:
		if v.Description != "" {
			return v.Description
		}
		return fmt.Sprintf("apply RLS policy %s on %s", v.PolicyName, v.TableName)
	case nil:
		return "<nil>"
	}
	return string(in.Type())
}
