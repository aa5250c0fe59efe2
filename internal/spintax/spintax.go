// Package spintax resolves {a|b|c} dynamic-content blocks into concrete text.
//
// Blocks nest arbitrarily up to a fixed depth. Each block is resolved
// independently: one option is chosen uniformly at random, or weight
// proportionally when options carry a trailing ":N" weight suffix
// ({now:3|today}). Text without braces passes through untouched.
package spintax

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"
)

// DefaultMaxDepth bounds block nesting. Deeper input is rejected as malformed
// rather than expanded.
const DefaultMaxDepth = 10

// SyntaxError reports malformed spintax with the byte offset of the problem.
type SyntaxError struct {
	Offset int
	Msg    string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("spintax: %s at offset %d", e.Msg, e.Offset)
}

// Expander expands spintax text. Safe for concurrent use.
type Expander struct {
	// MaxDepth is the nesting bound enforced during parsing.
	MaxDepth int

	mu  sync.Mutex
	rng *rand.Rand
}

// New returns an Expander drawing from rng. A nil rng gets a time-seeded
// source; tests pass a fixed seed for reproducible output.
func New(rng *rand.Rand) *Expander {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Expander{MaxDepth: DefaultMaxDepth, rng: rng}
}

// Expand resolves every block in text and returns the concrete result.
// Idempotent on text containing no braces.
func (e *Expander) Expand(text string) (string, error) {
	seq, err := parse(text, e.maxDepth())
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.Grow(len(text))
	e.mu.Lock()
	resolveSeq(&b, seq, e.rng)
	e.mu.Unlock()
	return b.String(), nil
}

// CountVariations returns the total number of distinct expansions without
// performing any: the product across blocks of each block's option count,
// options counting their own nested variations.
func (e *Expander) CountVariations(text string) (int64, error) {
	seq, err := parse(text, e.maxDepth())
	if err != nil {
		return 0, err
	}
	return countSeq(seq), nil
}

// Validate parses text and reports unbalanced braces, empty options, too-deep
// nesting, or zero-total-weight blocks without expanding anything.
func (e *Expander) Validate(text string) error {
	_, err := parse(text, e.maxDepth())
	return err
}

func (e *Expander) maxDepth() int {
	if e.MaxDepth > 0 {
		return e.MaxDepth
	}
	return DefaultMaxDepth
}

// ---- parse tree ----

// part is one segment of an option or of the top-level text: either a literal
// or a nested block, never both.
type part struct {
	lit string
	blk *block
}

type option struct {
	parts  []part
	weight int
}

type block struct {
	options     []option
	totalWeight int
}

type parser struct {
	src      string
	pos      int
	maxDepth int
}

func parse(text string, maxDepth int) ([]part, error) {
	p := &parser{src: text, maxDepth: maxDepth}
	return p.sequence(0)
}

// sequence consumes literal text and blocks until EOF, or until a '|' or '}'
// belonging to the enclosing block (depth > 0).
func (p *parser) sequence(depth int) ([]part, error) {
	var seq []part
	start := p.pos
	flush := func(end int) {
		if end > start {
			seq = append(seq, part{lit: p.src[start:end]})
		}
	}
	for p.pos < len(p.src) {
		switch p.src[p.pos] {
		case '{':
			flush(p.pos)
			blk, err := p.block(depth + 1)
			if err != nil {
				return nil, err
			}
			seq = append(seq, part{blk: blk})
			start = p.pos
		case '}', '|':
			if depth > 0 {
				flush(p.pos)
				return seq, nil
			}
			if p.src[p.pos] == '}' {
				return nil, &SyntaxError{Offset: p.pos, Msg: "unbalanced '}'"}
			}
			// a pipe outside any block is literal text
			p.pos++
		default:
			p.pos++
		}
	}
	flush(p.pos)
	return seq, nil
}

// block consumes one '{...}' group starting at the opening brace.
func (p *parser) block(depth int) (*block, error) {
	open := p.pos
	if depth > p.maxDepth {
		return nil, &SyntaxError{Offset: open, Msg: fmt.Sprintf("nesting exceeds max depth %d", p.maxDepth)}
	}
	p.pos++ // consume '{'

	blk := &block{}
	for {
		optStart := p.pos
		parts, err := p.sequence(depth)
		if err != nil {
			return nil, err
		}
		if p.pos >= len(p.src) {
			return nil, &SyntaxError{Offset: open, Msg: "unbalanced '{'"}
		}

		opt := option{parts: parts, weight: 1}
		opt.parts, opt.weight = splitWeight(opt.parts)
		if emptyOption(opt.parts) {
			return nil, &SyntaxError{Offset: optStart, Msg: "empty option"}
		}
		blk.options = append(blk.options, opt)
		blk.totalWeight += opt.weight

		if p.src[p.pos] == '}' {
			p.pos++ // consume '}'
			break
		}
		p.pos++ // consume '|'
	}
	if blk.totalWeight <= 0 {
		return nil, &SyntaxError{Offset: open, Msg: "block has zero total weight"}
	}
	return blk, nil
}

// splitWeight strips a trailing ":N" weight suffix from the option's final
// literal part. The text after the last colon must be one or more digits;
// anything else (URLs, times) is left alone with the default weight of 1.
func splitWeight(parts []part) ([]part, int) {
	if len(parts) == 0 {
		return parts, 1
	}
	last := parts[len(parts)-1]
	if last.blk != nil {
		return parts, 1
	}
	i := strings.LastIndexByte(last.lit, ':')
	if i < 0 || i == len(last.lit)-1 {
		return parts, 1
	}
	digits := last.lit[i+1:]
	for _, r := range digits {
		if r < '0' || r > '9' {
			return parts, 1
		}
	}
	w, err := strconv.Atoi(digits)
	if err != nil {
		return parts, 1
	}
	trimmed := last.lit[:i]
	parts[len(parts)-1].lit = trimmed
	if trimmed == "" {
		// ":3" alone leaves an empty option, caught by the caller
		parts = parts[:len(parts)-1]
	}
	return parts, w
}

func emptyOption(parts []part) bool {
	for _, p := range parts {
		if p.blk != nil || p.lit != "" {
			return false
		}
	}
	return true
}

// ---- resolution ----

func resolveSeq(b *strings.Builder, seq []part, rng *rand.Rand) {
	for _, p := range seq {
		if p.blk == nil {
			b.WriteString(p.lit)
			continue
		}
		opt := pick(p.blk, rng)
		resolveSeq(b, opt.parts, rng)
	}
}

func pick(blk *block, rng *rand.Rand) option {
	r := rng.Intn(blk.totalWeight)
	for _, opt := range blk.options {
		r -= opt.weight
		if r < 0 {
			return opt
		}
	}
	return blk.options[len(blk.options)-1]
}

// ---- counting ----

func countSeq(seq []part) int64 {
	total := int64(1)
	for _, p := range seq {
		if p.blk == nil {
			continue
		}
		var blockCount int64
		for _, opt := range p.blk.options {
			blockCount += countSeq(opt.parts)
		}
		total *= blockCount
	}
	return total
}
