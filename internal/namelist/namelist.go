// SPDX-License-Identifier: AGPL-3.0-or-later

// Package namelist parses, merges and writes the parameter blocks read by the
// simulation executable at start-up.
//
// A block looks like:
//
//	&ini_embm_nml
//	 ea_title="run",
//	 ndta(1)=2,
//	&END
package namelist

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/flowd-org/simctl/internal/layers"
)

const blockMarker = "&"

// ErrUnknownEntry is wrapped by UnknownKeysError.
var ErrUnknownEntry = errors.New("unknown namelist entry")

// UnknownKeysError lists configuration keys that matched a module prefix but
// have no entry in the template.
type UnknownKeysError struct {
	Namelist string
	Keys     []string
}

func (e *UnknownKeysError) Error() string {
	return fmt.Sprintf("namelist %s: %d unknown key(s): %s", e.Namelist, len(e.Keys), strings.Join(e.Keys, ", "))
}

func (e *UnknownKeysError) Unwrap() error { return ErrUnknownEntry }

// Namelist is one named parameter block.
type Namelist struct {
	Name    string
	Entries map[string]Value
	// Malformed is set when the template lacked its start or end marker.
	// Such a template parses to an empty block.
	Malformed bool
}

// New returns an empty namelist.
func New(name string) *Namelist {
	return &Namelist{Name: name, Entries: map[string]Value{}}
}

// ParseFile parses the template at path.
func ParseFile(path string) (*Namelist, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open namelist template: %w", err)
	}
	defer f.Close()
	nl, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("read namelist template %s: %w", path, err)
	}
	return nl, nil
}

// Parse reads a single block. Only I/O failures are errors; a template with a
// missing start or end marker yields an empty, Malformed namelist.
func Parse(r io.Reader) (*Namelist, error) {
	nl := New("")
	started, ended := false, false

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !started {
			if strings.HasPrefix(line, blockMarker) {
				nl.Name = strings.TrimSpace(line[1:])
				started = true
			}
			continue
		}
		if strings.HasPrefix(line, blockMarker) {
			ended = true
			break
		}
		line = strings.TrimSuffix(line, ",")
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		nl.Entries[key] = Classify(strings.Trim(strings.TrimSpace(val), `"'`))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if !started || !ended {
		return &Namelist{Name: nl.Name, Entries: map[string]Value{}, Malformed: true}, nil
	}
	return nl, nil
}

// Keys returns entry names in sorted order.
func (n *Namelist) Keys() []string {
	keys := make([]string, 0, len(n.Entries))
	for k := range n.Entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Get returns the entry value.
func (n *Namelist) Get(name string) (Value, bool) {
	v, ok := n.Entries[name]
	return v, ok
}

// Clone returns a deep copy.
func (n *Namelist) Clone() *Namelist {
	out := &Namelist{Name: n.Name, Entries: make(map[string]Value, len(n.Entries)), Malformed: n.Malformed}
	for k, v := range n.Entries {
		out.Entries[k] = v
	}
	return out
}

var subscript = regexp.MustCompile(`_(\d+)$`)

// EntryName maps a configuration key to a namelist entry name under prefix.
// The prefix may be given with or without its trailing underscore. A trailing
// _<digits> becomes an array subscript: foo_bar_3 under foo_ is bar(3).
func EntryName(prefix, key string) (string, bool) {
	p := strings.TrimSuffix(prefix, "_") + "_"
	if !strings.HasPrefix(key, p) {
		return "", false
	}
	rest := key[len(p):]
	if rest == "" {
		return "", false
	}
	if m := subscript.FindStringSubmatchIndex(rest); m != nil && m[0] > 0 {
		rest = rest[:m[0]] + "(" + rest[m[2]:m[3]] + ")"
	}
	return rest, true
}

// Merge applies the stack to the namelist in order. Only entries already in
// the template are overwritten; keys without a matching entry are ignored and
// returned, sorted, so callers can report them.
func (n *Namelist) Merge(prefix string, stack layers.Stack) []string {
	unknown := map[string]struct{}{}
	for _, l := range stack {
		for k, raw := range l {
			name, ok := EntryName(prefix, k)
			if !ok {
				continue
			}
			if _, exists := n.Entries[name]; !exists {
				unknown[k] = struct{}{}
				continue
			}
			n.Entries[name] = Classify(raw)
		}
	}
	out := make([]string, 0, len(unknown))
	for k := range unknown {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// MergeStrict merges like Merge and reports unknown keys as an
// *UnknownKeysError. Known keys are applied either way.
func (n *Namelist) MergeStrict(prefix string, stack layers.Stack) error {
	unknown := n.Merge(prefix, stack)
	if len(unknown) == 0 {
		return nil
	}
	return &UnknownKeysError{Namelist: n.Name, Keys: unknown}
}

// Write serialises the block with entries sorted by name.
func (n *Namelist) Write(w io.Writer) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "&%s\n", n.Name)
	for _, k := range n.Keys() {
		fmt.Fprintf(bw, " %s=%s,\n", k, n.Entries[k].Format())
	}
	fmt.Fprintln(bw, "&END")
	return bw.Flush()
}

// WriteFile writes the block to path.
func (n *Namelist) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create namelist: %w", err)
	}
	if err := n.Write(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("write namelist %s: %w", path, err)
	}
	return f.Close()
}
