// Package blocktext converts between block-structured text and an ordered
// key to content map.
//
// A key line is a line matching ^[A-Z_]+:$ after trailing whitespace is
// removed. Content runs verbatim from the line after a key line to the next
// key line. Lines that look like keys but are not uppercase are reported as
// extra keys and kept as content.
package blocktext

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
)

var (
	keyLineRe = regexp.MustCompile(`^[A-Z_]+:$`)
	keyLikeRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*:$`)
)

// IsKeyLine reports whether line is a block boundary.
func IsKeyLine(line string) bool {
	return keyLineRe.MatchString(strings.TrimRight(line, " \t\r"))
}

// Blocks is an insertion-ordered map of block key to content.
type Blocks struct {
	keys    []string
	content map[string]string
}

// New returns an empty Blocks.
func New() *Blocks {
	return &Blocks{content: make(map[string]string)}
}

// FromPairs builds Blocks from alternating key, content arguments.
func FromPairs(kv ...string) *Blocks {
	b := New()
	for i := 0; i+1 < len(kv); i += 2 {
		b.Set(kv[i], kv[i+1])
	}
	return b
}

// Set stores content under key, keeping the key's original position when it
// already exists.
func (b *Blocks) Set(key, content string) {
	if _, ok := b.content[key]; !ok {
		b.keys = append(b.keys, key)
	}
	b.content[key] = content
}

// Get returns the content of key.
func (b *Blocks) Get(key string) (string, bool) {
	v, ok := b.content[key]
	return v, ok
}

// Has reports whether key is present.
func (b *Blocks) Has(key string) bool {
	_, ok := b.content[key]
	return ok
}

// Keys returns the keys in insertion order.
func (b *Blocks) Keys() []string {
	return append([]string(nil), b.keys...)
}

// Len returns the number of blocks.
func (b *Blocks) Len() int { return len(b.keys) }

// Map returns a copy of the content map.
func (b *Blocks) Map() map[string]string {
	m := make(map[string]string, len(b.content))
	for k, v := range b.content {
		m[k] = v
	}
	return m
}

// Result is the parser output.
type Result struct {
	Blocks *Blocks
	// Preamble is any text before the first key line.
	Preamble string
	// ExtraKeys lists key-like lines that are not valid key lines, in order.
	ExtraKeys []string
	// Duplicates lists keys seen more than once. Only the first occurrence
	// is kept in Blocks.
	Duplicates []string
}

// Parse splits text into blocks. Lines have no length limit.
func Parse(text string) Result {
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t\r")
	}
	return parseLines(lines)
}

// ParseFile reads and parses the file at path.
func ParseFile(path string) (Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return Result{}, fmt.Errorf("blocktext: open %s: %w", path, err)
	}
	defer f.Close()
	return ParseReader(f)
}

// ParseReader reads all of r and parses it.
func ParseReader(r io.Reader) (Result, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Result{Blocks: New()}, fmt.Errorf("blocktext: read: %w", err)
	}
	return Parse(string(data)), nil
}

func parseLines(lines []string) Result {
	res := Result{Blocks: New()}
	var (
		key      string // current block key, "" before the first key line
		skip     bool   // current block is a duplicate
		buf      []string
		preamble []string
	)
	seenDup := make(map[string]bool)

	flush := func() {
		if key == "" {
			res.Preamble = joinTrimmed(preamble)
			return
		}
		if !skip {
			res.Blocks.Set(key, joinTrimmed(buf))
		}
	}

	for _, line := range lines {
		if keyLineRe.MatchString(line) {
			flush()
			key = strings.TrimSuffix(line, ":")
			buf = nil
			skip = res.Blocks.Has(key)
			if skip && !seenDup[key] {
				seenDup[key] = true
				res.Duplicates = append(res.Duplicates, key)
			}
			continue
		}
		if keyLikeRe.MatchString(line) {
			res.ExtraKeys = append(res.ExtraKeys, strings.TrimSuffix(line, ":"))
		}
		if key == "" {
			preamble = append(preamble, line)
		} else {
			buf = append(buf, line)
		}
	}
	flush()
	return res
}

// joinTrimmed joins lines with newlines after dropping trailing blank lines.
func joinTrimmed(lines []string) string {
	end := len(lines)
	for end > 0 && lines[end-1] == "" {
		end--
	}
	return strings.Join(lines[:end], "\n")
}

// Render emits blocks as "KEY:\ncontent" separated by blank lines. Keys named
// in order come first, in that order; the remaining keys follow in insertion
// order. Keys in order that are absent from b are skipped.
func Render(b *Blocks, order []string) string {
	if b == nil {
		return ""
	}
	emitted := make(map[string]bool, b.Len())
	parts := make([]string, 0, b.Len())
	emit := func(k string) {
		if emitted[k] || !b.Has(k) {
			return
		}
		emitted[k] = true
		parts = append(parts, k+":\n"+b.content[k])
	}
	for _, k := range order {
		emit(k)
	}
	for _, k := range b.keys {
		emit(k)
	}
	return strings.Join(parts, "\n\n")
}

// FencePrefix returns the opening fence marker ("```", "~~~~", ...) when line
// starts a fenced code block, otherwise "". Up to three leading spaces are
// allowed; four or more make an indented code block.
func FencePrefix(line string) string {
	leading := 0
	for leading < len(line) && line[leading] == ' ' {
		leading++
	}
	if leading >= 4 {
		return ""
	}
	stripped := line[leading:]
	for _, marker := range []byte{'`', '~'} {
		if len(stripped) < 3 || stripped[0] != marker {
			continue
		}
		count := 0
		for count < len(stripped) && stripped[count] == marker {
			count++
		}
		if count >= 3 {
			return stripped[:count]
		}
	}
	return ""
}
