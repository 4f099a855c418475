// SPDX-License-Identifier: AGPL-3.0-or-later

// Package layers reads flat key=value configuration fragments and combines
// them into ordered override stacks.
package layers

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"regexp"
	"sort"
	"strings"
)

// ErrConfigNotFound is wrapped by NotFoundError.
var ErrConfigNotFound = errors.New("configuration not found")

// NotFoundError reports a required configuration fragment that does not exist.
type NotFoundError struct {
	What string
	Path string
}

func (e *NotFoundError) Error() string {
	what := e.What
	if what == "" {
		what = "configuration"
	}
	return fmt.Sprintf("%s not found: %s", what, e.Path)
}

func (e *NotFoundError) Unwrap() error { return ErrConfigNotFound }

// Layer maps parameter names to raw string values. Values are never typed here.
type Layer map[string]string

// Clone returns a shallow copy of the layer.
func (l Layer) Clone() Layer {
	out := make(Layer, len(l))
	for k, v := range l {
		out[k] = v
	}
	return out
}

// Keys returns the layer keys in sorted order.
func (l Layer) Keys() []string {
	keys := make([]string, 0, len(l))
	for k := range l {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Stack is an ordered list of layers, lowest precedence first.
type Stack []Layer

// Lookup returns the value of key from the last layer that defines it.
func (s Stack) Lookup(key string) (string, bool) {
	for i := len(s) - 1; i >= 0; i-- {
		if v, ok := s[i][key]; ok {
			return v, true
		}
	}
	return "", false
}

// Flatten collapses the stack into a single layer with later layers winning.
func (s Stack) Flatten() Layer {
	out := Layer{}
	for _, l := range s {
		for k, v := range l {
			out[k] = v
		}
	}
	return out
}

var (
	commentLine = regexp.MustCompile(`^\s*#`)
	entryLine   = regexp.MustCompile(`([a-zA-Z0-9_]+)=(.*)`)
)

// Read parses the fragment at path. what names the fragment in errors
// ("Base configuration", "User configuration", ...).
func Read(path, what string) (Layer, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &NotFoundError{What: what, Path: path}
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	layer, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return layer, nil
}

// Parse reads key=value lines from r. Lines starting with '#' are skipped and
// the first name=value pair on any other line is taken.
func Parse(r io.Reader) (Layer, error) {
	layer := Layer{}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if commentLine.MatchString(line) {
			continue
		}
		m := entryLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		layer[m[1]] = cleanValue(strings.TrimSpace(m[2]))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return layer, nil
}

// cleanValue strips one level of quoting, or a trailing comment from an
// unquoted value.
func cleanValue(s string) string {
	if s == "" {
		return s
	}
	if q := s[0]; q == '"' || q == '\'' {
		rest := s[1:]
		if i := strings.IndexByte(rest, q); i >= 0 {
			return rest[:i]
		}
		return rest
	}
	if i := strings.IndexByte(s, '#'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
