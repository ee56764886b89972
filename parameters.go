package sqb

import (
	"strconv"
	"strings"

	"github.com/zoobzio/capitan"
)

// normalizeKey converts a parameter key to its name. Integer keys become
// their decimal text and string keys lose surrounding colons.
func normalizeKey(key any) (string, error) {
	switch k := key.(type) {
	case string:
		return strings.Trim(k, ":"), nil
	case int:
		return strconv.Itoa(k), nil
	default:
		return "", newInvalidKeyError(key)
	}
}

// placeholder returns ":name" for named parameters and the bare position
// for positional ones.
func placeholder(name string) string {
	if _, err := strconv.Atoi(name); err == nil {
		return name
	}
	return ":" + name
}

func (s *Session) isImmutable(p *Parameter) bool {
	if p == nil {
		return false
	}
	for _, im := range s.immutable {
		if im == p {
			return true
		}
	}
	return false
}

func (s *Session) bind(key any, value any, typ ParamType, immutable bool) (string, error) {
	name, err := normalizeKey(key)
	if err != nil {
		return "", s.fail(err)
	}
	if s.isImmutable(s.engine.Parameter(name)) {
		return "", s.fail(&ImmutableParameterError{Name: name})
	}
	s.engine.SetParameter(name, value, typ)
	if immutable {
		if p := s.engine.Parameter(name); p != nil && !s.isImmutable(p) {
			s.immutable = append(s.immutable, p)
		}
	}

	im := 0
	if immutable {
		im = 1
	}
	capitan.Debug(s.config.ctx, ParameterBound,
		ParameterKey.Field(name),
		ImmutableKey.Field(im),
	)
	return name, nil
}

// SetParameter binds value to key, a string name or an int position.
// Rebinding an immutable parameter fails with ErrImmutableParameter.
func (s *Session) SetParameter(key any, value any, typ ...ParamType) error {
	_, err := s.bind(key, value, firstType(typ), false)
	return err
}

// SetImmutableParameter binds value to key and marks the parameter immutable.
func (s *Session) SetImmutableParameter(key any, value any, typ ...ParamType) error {
	_, err := s.bind(key, value, firstType(typ), true)
	return err
}

// WithParameter binds value to key and returns the placeholder to embed.
func (s *Session) WithParameter(key any, value any, typ ...ParamType) (string, error) {
	name, err := s.bind(key, value, firstType(typ), false)
	if err != nil {
		return "", err
	}
	return placeholder(name), nil
}

// WithImmutableParameter binds an immutable value to key and returns the
// placeholder to embed.
func (s *Session) WithImmutableParameter(key any, value any, typ ...ParamType) (string, error) {
	name, err := s.bind(key, value, firstType(typ), true)
	if err != nil {
		return "", err
	}
	return placeholder(name), nil
}

// WithUniqueParameter binds value under a fresh name derived from key and
// returns its placeholder.
func (s *Session) WithUniqueParameter(key any, value any, typ ...ParamType) (string, error) {
	name, err := s.uniqueName(key)
	if err != nil {
		return "", err
	}
	return s.WithParameter(name, value, typ...)
}

// WithUniqueImmutableParameter binds an immutable value under a fresh name
// derived from key and returns its placeholder.
func (s *Session) WithUniqueImmutableParameter(key any, value any, typ ...ParamType) (string, error) {
	name, err := s.uniqueName(key)
	if err != nil {
		return "", err
	}
	return s.WithImmutableParameter(name, value, typ...)
}

// uniqueName returns <prefix><key>_<n>, using a per-session counter and
// skipping names the engine already holds.
func (s *Session) uniqueName(key any) (string, error) {
	base, err := normalizeKey(key)
	if err != nil {
		return "", s.fail(err)
	}
	for {
		s.seq++
		name := s.config.prefix + base + "_" + strconv.Itoa(s.seq)
		if s.engine.Parameter(name) == nil {
			return name, nil
		}
	}
}

// SetParameters replaces the whole parameter set. It fails with
// ErrImmutableParameters while any immutable parameter exists.
func (s *Session) SetParameters(params []*Parameter) error {
	if len(s.immutable) > 0 {
		return s.fail(ErrImmutableParameters)
	}
	normalized, err := s.copyParameters(params)
	if err != nil {
		return err
	}
	s.engine.SetParameters(normalized)
	return nil
}

// SetImmutableParameters replaces the whole parameter set and marks every
// parameter immutable.
func (s *Session) SetImmutableParameters(params []*Parameter) error {
	if len(s.immutable) > 0 {
		return s.fail(ErrImmutableParameters)
	}
	normalized, err := s.copyParameters(params)
	if err != nil {
		return err
	}
	s.engine.SetParameters(normalized)
	s.immutable = append(s.immutable, s.engine.Parameters()...)
	return nil
}

func (s *Session) copyParameters(params []*Parameter) ([]*Parameter, error) {
	out := make([]*Parameter, 0, len(params))
	for _, p := range params {
		if p == nil {
			continue
		}
		name, err := normalizeKey(p.Name)
		if err != nil {
			return nil, s.fail(err)
		}
		out = append(out, &Parameter{Name: name, Value: p.Value, Type: p.Type})
	}
	return out, nil
}

// Parameter returns the parameter bound to key, or nil.
func (s *Session) Parameter(key any) (*Parameter, error) {
	name, err := normalizeKey(key)
	if err != nil {
		return nil, s.fail(err)
	}
	return s.engine.Parameter(name), nil
}

// Parameters returns every bound parameter.
func (s *Session) Parameters() []*Parameter {
	return s.engine.Parameters()
}

// ImmutableParameter returns the parameter bound to key if it is immutable.
func (s *Session) ImmutableParameter(key any) (*Parameter, error) {
	p, err := s.Parameter(key)
	if err != nil {
		return nil, err
	}
	if !s.isImmutable(p) {
		return nil, nil
	}
	return p, nil
}

// ImmutableParameters returns the immutable parameters in binding order.
func (s *Session) ImmutableParameters() []*Parameter {
	return append([]*Parameter(nil), s.immutable...)
}

func firstType(typ []ParamType) ParamType {
	if len(typ) == 0 {
		return ""
	}
	return typ[0]
}

// RenamePlaceholders rewrites ":old" placeholders in text to ":new" using
// names. Only whole placeholder names are matched, so renaming p_1 leaves
// :p_10 alone, and quoted literals are copied untouched.
func RenamePlaceholders(text string, names map[string]string) string {
	if len(names) == 0 || !strings.Contains(text, ":") {
		return text
	}
	var b strings.Builder
	b.Grow(len(text))
	for i := 0; i < len(text); {
		c := text[i]
		switch {
		case c == '\'' || c == '"':
			end := skipQuoted(text, i)
			b.WriteString(text[i:end])
			i = end
		case c == ':' && i+1 < len(text) && isIdentPart(text[i+1]):
			start := i + 1
			end := start
			for end < len(text) && isIdentPart(text[end]) {
				end++
			}
			b.WriteByte(':')
			if renamed, ok := names[text[start:end]]; ok {
				b.WriteString(renamed)
			} else {
				b.WriteString(text[start:end])
			}
			i = end
		default:
			b.WriteByte(c)
			i++
		}
	}
	return b.String()
}
