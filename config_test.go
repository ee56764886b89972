package sqb

import (
	"context"
	"testing"
)

type ctxKey struct{}

func TestDefaultConfig(t *testing.T) {
	c := defaultConfig()
	if c.ctx == nil {
		t.Error("default context is nil")
	}
	if c.prefix != "param_" {
		t.Errorf("prefix = %q, want param_", c.prefix)
	}
	if c.tautology != "1=1" {
		t.Errorf("tautology = %q, want 1=1", c.tautology)
	}
}

func TestOptions(t *testing.T) {
	ctx := context.WithValue(context.Background(), ctxKey{}, "v")
	c := defaultConfig()
	for _, opt := range []Option{
		WithContext(ctx),
		WithParameterPrefix("p_"),
		WithTautology("TRUE"),
	} {
		opt(&c)
	}

	if c.ctx.Value(ctxKey{}) != "v" {
		t.Error("WithContext did not set the context")
	}
	if c.prefix != "p_" {
		t.Errorf("prefix = %q, want p_", c.prefix)
	}
	if c.tautology != "TRUE" {
		t.Errorf("tautology = %q, want TRUE", c.tautology)
	}
}

func TestOptionsIgnoreEmptyValues(t *testing.T) {
	c := defaultConfig()
	//nolint:staticcheck // a nil context must be ignored
	WithContext(nil)(&c)
	WithTautology("")(&c)

	if c.ctx == nil {
		t.Error("WithContext(nil) cleared the context")
	}
	if c.tautology != "1=1" {
		t.Errorf("tautology = %q, want 1=1", c.tautology)
	}
}
