package sqb

import (
	"fmt"
	"strings"

	"github.com/zoobzio/capitan"
)

// performLazyJoinsIfNeeded materializes every pending lazy join whose alias
// appears in the engine's query text. Materializing a join can add text that
// names further lazy aliases, so the scan repeats until a pass finds none.
// Each materialization removes one record, which bounds the loop.
func (s *Session) performLazyJoinsIfNeeded() error {
	for s.lazyJoins.len() > 0 {
		aliases := s.lazyAliasesIn(s.engine.DQL(), "")
		if len(aliases) == 0 {
			return nil
		}
		for _, alias := range aliases {
			if err := s.performLazyJoin(alias); err != nil {
				return err
			}
		}
	}
	return nil
}

// performLazyJoinsIn materializes the lazy joins named in texts, except exclude.
func (s *Session) performLazyJoinsIn(texts []string, exclude string) error {
	if s.lazyJoins.len() == 0 {
		return nil
	}
	for _, text := range texts {
		for _, alias := range s.lazyAliasesIn(text, exclude) {
			if err := s.performLazyJoin(alias); err != nil {
				return err
			}
		}
	}
	return nil
}

// performLazyJoin materializes the lazy join using alias after the lazy joins
// it depends on. Unknown aliases are ignored since a dependency may already
// have been materialized earlier in the same pass.
func (s *Session) performLazyJoin(alias string) error {
	entity, ok := s.lazyJoins.entityForAlias(alias)
	if !ok {
		return nil
	}
	for _, pending := range s.resolving {
		if pending == alias {
			chain := append(append([]string(nil), s.resolving...), alias)
			return s.fail(fmt.Errorf("%w: %s", ErrLazyJoinCycle, strings.Join(chain, " -> ")))
		}
	}

	depth := len(s.resolving)
	s.resolving = append(s.resolving, alias)
	defer func() { s.resolving = s.resolving[:len(s.resolving)-1] }()

	j, _ := s.lazyJoins.get(entity)
	if err := s.performLazyJoinsIn(j.args(), alias); err != nil {
		return err
	}
	if err := s.join(j); err != nil {
		return err
	}
	s.lazyJoins.remove(entity)

	capitan.Debug(s.config.ctx, LazyJoinPerformed,
		EntityKey.Field(entity),
		AliasKey.Field(alias),
		DepthKey.Field(depth),
	)
	return nil
}

// lazyAliasesIn returns the pending lazy aliases referenced by text, in order
// of first appearance, without exclude.
func (s *Session) lazyAliasesIn(text, exclude string) []string {
	if text == "" {
		return nil
	}
	pending := make(map[string]bool, s.lazyJoins.len())
	for _, a := range s.lazyJoins.aliases() {
		if a != exclude {
			pending[a] = true
		}
	}
	if len(pending) == 0 {
		return nil
	}
	return scanAliases(text, func(word string) bool { return pending[word] })
}

// scanAliases tokenizes query text and returns the identifiers accepted by
// match, deduplicated and in order of appearance. Quoted literals, parameter
// placeholders and identifiers following a dot are skipped, so that a field
// or a string value sharing an alias's name is never taken for the alias.
func scanAliases(text string, match func(string) bool) []string {
	var found []string
	seen := make(map[string]bool)
	for i := 0; i < len(text); {
		c := text[i]
		switch {
		case c == '\'' || c == '"':
			i = skipQuoted(text, i)
		case c == ':' || c == '?':
			i++
			for i < len(text) && isIdentPart(text[i]) {
				i++
			}
		case isDigit(c):
			for i < len(text) && isIdentPart(text[i]) {
				i++
			}
		case isIdentStart(c):
			start := i
			for i < len(text) && isIdentPart(text[i]) {
				i++
			}
			if start > 0 && text[start-1] == '.' {
				continue
			}
			word := text[start:i]
			if !seen[word] && match(word) {
				seen[word] = true
				found = append(found, word)
			}
		default:
			i++
		}
	}
	return found
}

// skipQuoted returns the index just past the literal opening at i. A doubled
// quote inside the literal is an escaped quote.
func skipQuoted(text string, i int) int {
	q := text[i]
	i++
	for i < len(text) {
		if text[i] == q {
			if i+1 < len(text) && text[i+1] == q {
				i += 2
				continue
			}
			return i + 1
		}
		i++
	}
	return i
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c >= 0x80
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || isDigit(c)
}
