package instruction

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// New returns an empty instruction of type t.
func New(t Type) (Instruction, error) {
	switch t {
	case TypeI18nAddKey:
		return &I18nAddKey{}, nil
	case TypeCloneLocaleFile:
		return &CloneLocaleFile{}, nil
	case TypeEnvAddPlaceholder:
		return &EnvAddPlaceholder{}, nil
	case TypeCodeModify:
		return &CodeModify{}, nil
	case TypeCreateFile:
		return &CreateFile{}, nil
	case TypeHetznerCommand:
		return &HetznerCommand{}, nil
	case TypeSupabaseMigration:
		return &SupabaseMigration{}, nil
	case TypeSupabaseRLSPolicy:
		return &SupabaseRLSPolicy{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownType, t)
}

// Marshal encodes in with its "type" discriminator as the first field.
func Marshal(in Instruction) ([]byte, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: nil instruction", ErrInvalid)
	}
	body, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}
	typ, err := json.Marshal(in.Type())
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.WriteString(`{"type":`)
	buf.Write(typ)
	if inner := bytes.TrimSpace(body[1 : len(body)-1]); len(inner) > 0 {
		buf.WriteByte(',')
		buf.Write(inner)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Unmarshal decodes a single instruction object.
func Unmarshal(data []byte) (Instruction, error) {
	var head struct {
		Type Type `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("decode instruction: %w", err)
	}
	in, err := New(head.Type)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, in); err != nil {
		return nil, fmt.Errorf("decode %s: %w", head.Type, err)
	}
	return in, nil
}

// List is an ordered instruction batch with a JSON array encoding.
type List []Instruction

// MarshalJSON implements json.Marshaler.
func (l List) MarshalJSON() ([]byte, error) {
	items := make([]json.RawMessage, 0, len(l))
	for _, in := range l {
		b, err := Marshal(in)
		if err != nil {
			return nil, err
		}
		items = append(items, b)
	}
	return json.Marshal(items)
}

// UnmarshalJSON implements json.Unmarshaler.
func (l *List) UnmarshalJSON(data []byte) error {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	out := make(List, 0, len(items))
	for i, raw := range items {
		in, err := Unmarshal(raw)
		if err != nil {
			return fmt.Errorf("instruction %d: %w", i, err)
		}
		out = append(out, in)
	}
	*l = out
	return nil
}

// Validate validates every instruction in order.
func (l List) Validate() error {
	for i, in := range l {
		if in == nil {
			return fmt.Errorf("instruction %d: %w: nil", i, ErrInvalid)
		}
		if err := in.Validate(); err != nil {
			return fmt.Errorf("instruction %d: %w", i, err)
		}
	}
	return nil
}

// Types returns the discriminators of l in order.
func (l List) Types() []Type {
	out := make([]Type, len(l))
	for i, in := range l {
		out[i] = in.Type()
	}
	return out
}
