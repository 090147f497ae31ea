// Package glob implements the byte-oriented pattern matcher used by Find and
// Subscribe to select keys. Patterns support two wildcards: '_' matches
// exactly one byte, and '*' matches zero or more bytes. A backslash escapes
// the character that follows it, so a literal '_' or '*' can appear in a
// pattern as '\_' or '\*'.
package glob

import "fmt"

// ErrBadPattern is returned when a pattern ends in a trailing, unescaped
// backslash with nothing left to escape.
type ErrBadPattern struct {
	Pattern string
}

func (e *ErrBadPattern) Error() string {
	return fmt.Sprintf("glob: pattern %q ends in a dangling escape character", e.Pattern)
}

// token is a single matchable unit in a compiled pattern: either a literal
// byte or one of the two wildcards.
type tokenKind byte

const (
	tokenLiteral tokenKind = iota
	tokenSingle            // '_'
	tokenAny               // '*'
)

type token struct {
	kind tokenKind
	b    byte // only meaningful when kind == tokenLiteral
}

// compile turns a raw pattern string into a token sequence, resolving
// escapes up front so Match never has to look backward.
func compile(pattern string) ([]token, error) {
	tokens := make([]token, 0, len(pattern))

	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		switch c {
		case '\\':
			if i+1 >= len(pattern) {
				return nil, &ErrBadPattern{Pattern: pattern}
			}
			i++
			tokens = append(tokens, token{kind: tokenLiteral, b: pattern[i]})
		case '_':
			tokens = append(tokens, token{kind: tokenSingle})
		case '*':
			// Collapse consecutive '*' tokens; they are equivalent to one.
			if len(tokens) > 0 && tokens[len(tokens)-1].kind == tokenAny {
				continue
			}
			tokens = append(tokens, token{kind: tokenAny})
		default:
			tokens = append(tokens, token{kind: tokenLiteral, b: c})
		}
	}

	return tokens, nil
}

// Match reports whether key matches pattern. It returns ErrBadPattern if
// pattern is malformed (a trailing unescaped backslash).
func Match(pattern string, key string) (bool, error) {
	tokens, err := compile(pattern)
	if err != nil {
		return false, err
	}
	return matchTokens(tokens, []byte(key)), nil
}

// matchTokens runs a standard greedy-with-backtrack wildcard match over the
// compiled token sequence against key, tracking the most recent '*' so a
// failed match downstream can fall back and consume one more byte into it.
func matchTokens(tokens []token, key []byte) bool {
	ti, ki := 0, 0
	starTi, starKi := -1, -1

	for ki < len(key) {
		if ti < len(tokens) {
			switch tokens[ti].kind {
			case tokenLiteral:
				if tokens[ti].b == key[ki] {
					ti++
					ki++
					continue
				}
			case tokenSingle:
				ti++
				ki++
				continue
			case tokenAny:
				starTi = ti
				starKi = ki
				ti++
				continue
			}
		}

		if starTi >= 0 {
			ti = starTi + 1
			starKi++
			ki = starKi
			continue
		}

		return false
	}

	for ti < len(tokens) && tokens[ti].kind == tokenAny {
		ti++
	}

	return ti == len(tokens)
}
