package diff

import (
	"bytes"
	"path"
	"strings"
	"unicode/utf8"

	difflib "github.com/pmezard/go-difflib/difflib"
)

// sniffLen bounds how much content is inspected to decide text vs binary.
const sniffLen = 8000

// DefaultTextExtensions are treated as text without sniffing.
var DefaultTextExtensions = []string{
	"txt", "md", "go", "rs", "py", "js", "ts", "json", "yaml", "yml", "toml",
	"xml", "html", "css", "c", "h", "cpp", "hpp", "java", "kt", "sh", "csv",
	"ini", "cfg", "conf", "log", "sql",
}

// Op tags a line of a line diff.
type Op string

const (
	OpEqual  Op = "equal"
	OpInsert Op = "insert"
	OpDelete Op = "delete"
)

// Line is one line of a line diff. OldLine and NewLine are 1-based and zero
// when the line does not exist on that side.
type Line struct {
	Op      Op     `json:"op"`
	OldLine int    `json:"old_line,omitempty"`
	NewLine int    `json:"new_line,omitempty"`
	Text    string `json:"text"`
}

// FileDiff is the content comparison of one modified path.
type FileDiff struct {
	Path     string `json:"path"`
	Binary   bool   `json:"binary,omitempty"`
	Oversize bool   `json:"oversize,omitempty"`
	Lines    []Line `json:"lines,omitempty"`
	Unified  string `json:"unified,omitempty"`
}

// Changed returns only inserted and deleted lines
func (d FileDiff) Changed() []Line {
	var out []Line
	for _, l := range d.Lines {
		if l.Op != OpEqual {
			out = append(out, l)
		}
	}
	return out
}

// TextOptions controls content diffs.
type TextOptions struct {
	Extensions []string // extensions (without dot) always treated as text
	Context    int      // unified context lines; defaults to 3
	MaxBytes   int      // skip line diffs when old+new exceed this; 0 = no limit
}

// IsText reports whether a file is text-like by extension or, failing
// that, by content: no NUL bytes and valid UTF-8 in the leading bytes.
func IsText(p string, data []byte, exts []string) bool {
	if len(exts) == 0 {
		exts = DefaultTextExtensions
	}
	h := head(data)
	if bytes.IndexByte(h, 0) >= 0 {
		return false
	}
	if ext := strings.ToLower(strings.TrimPrefix(path.Ext(p), ".")); ext != "" {
		for _, e := range exts {
			if strings.EqualFold(strings.TrimPrefix(strings.TrimSpace(e), "."), ext) {
				return true
			}
		}
	}
	if utf8.Valid(h) {
		return true
	}
	if len(data) <= sniffLen {
		return false
	}
	// a multi-byte rune may be cut at the sniff boundary
	for i := 1; i < utf8.UTFMax; i++ {
		if utf8.Valid(h[:len(h)-i]) {
			return true
		}
	}
	return false
}

func head(data []byte) []byte {
	if len(data) > sniffLen {
		return data[:sniffLen]
	}
	return data
}

// Text compares two versions of a file. Binary content yields a FileDiff
// with Binary set and no lines.
func Text(p string, a, b []byte, opts TextOptions) FileDiff {
	fd := FileDiff{Path: p}
	if !IsText(p, a, opts.Extensions) || !IsText(p, b, opts.Extensions) {
		fd.Binary = true
		return fd
	}
	if opts.MaxBytes > 0 && len(a)+len(b) > opts.MaxBytes {
		fd.Oversize = true
		return fd
	}

	fd.Lines = Lines(a, b)
	fd.Unified = Unified(p, a, b, opts.Context)
	return fd
}

// Lines computes a longest-common-subsequence style line diff.
func Lines(a, b []byte) []Line {
	la := splitLines(a)
	lb := splitLines(b)

	m := difflib.NewMatcherWithJunk(la, lb, false, nil)
	var out []Line
	for _, op := range m.GetOpCodes() {
		switch op.Tag {
		case 'e':
			for i := 0; i < op.I2-op.I1; i++ {
				out = append(out, Line{Op: OpEqual, OldLine: op.I1 + i + 1, NewLine: op.J1 + i + 1, Text: trimNL(la[op.I1+i])})
			}
		case 'd', 'r', 'i':
			for i := op.I1; i < op.I2; i++ {
				out = append(out, Line{Op: OpDelete, OldLine: i + 1, Text: trimNL(la[i])})
			}
			for j := op.J1; j < op.J2; j++ {
				out = append(out, Line{Op: OpInsert, NewLine: j + 1, Text: trimNL(lb[j])})
			}
		}
	}
	return out
}

// Unified renders a classic unified diff between a and b.
func Unified(p string, a, b []byte, context int) string {
	if context <= 0 {
		context = 3
	}
	u := difflib.UnifiedDiff{
		A:        splitLines(a),
		B:        splitLines(b),
		FromFile: "a/" + p,
		ToFile:   "b/" + p,
		Context:  context,
	}
	s, err := difflib.GetUnifiedDiffString(u)
	if err != nil {
		return ""
	}
	return s
}

// splitLines keeps the newline on each line so a missing final newline
// still counts as a difference.
func splitLines(data []byte) []string {
	if len(data) == 0 {
		return []string{}
	}
	lines := strings.SplitAfter(string(data), "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

func trimNL(s string) string {
	return strings.TrimSuffix(strings.TrimSuffix(s, "\n"), "\r")
}
