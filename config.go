package sqb

import "context"

const (
	defaultParameterPrefix = "param_"
	defaultTautology       = "1=1"
)

type config struct {
	ctx       context.Context
	prefix    string
	tautology string
}

func defaultConfig() config {
	return config{
		ctx:       context.Background(),
		prefix:    defaultParameterPrefix,
		tautology: defaultTautology,
	}
}

// Option configures a Session.
type Option func(*config)

// WithContext sets the context carried by the events a Session emits.
func WithContext(ctx context.Context) Option {
	return func(c *config) {
		if ctx != nil {
			c.ctx = ctx
		}
	}
}

// WithParameterPrefix sets the prefix of generated unique parameter names.
// The default is "param_".
func WithParameterPrefix(prefix string) Option {
	return func(c *config) {
		c.prefix = prefix
	}
}

// WithTautology sets the always-true condition produced by empty or already
// consumed proposals. The default is "1=1".
func WithTautology(cond string) Option {
	return func(c *config) {
		if cond != "" {
			c.tautology = cond
		}
	}
}
