// SPDX-License-Identifier: AGPL-3.0-or-later

package job

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

// DateLayout formats config_date.
const DateLayout = "2006-01-02 15:04:05"

// Config is the job's recorded configuration, stored as "key: value" lines
// in config/config.
type Config struct {
	BaseConfigDir string
	BaseConfig    string
	UserConfigDir string
	UserConfig    string
	FullConfigDir string
	FullConfig    string
	// ConfigMods is the path the overlay was read from, if any.
	ConfigMods string
	Restart    string
	ConfigDate string
	// RunLength is zero when unknown ("?" on disk).
	RunLength int
	T100      bool
	// Extra keeps unrecognised keys so rewriting does not drop them.
	Extra map[string]string
}

// Kind is "full" for full configurations and "base+user" otherwise.
func (c *Config) Kind() string {
	if c.FullConfig != "" {
		return "full"
	}
	return "base+user"
}

// Stamp sets ConfigDate to t.
func (c *Config) Stamp(t time.Time) {
	c.ConfigDate = t.Format(DateLayout)
}

// ReadConfig loads config/config. A missing file is reported with
// os.ErrNotExist.
func ReadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	cfg, err := ParseConfig(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// ParseConfig reads "key: value" lines. Lines without a colon are ignored.
func ParseConfig(r io.Reader) (*Config, error) {
	cfg := &Config{}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		k, v, ok := strings.Cut(strings.TrimSpace(scanner.Text()), ":")
		if !ok {
			continue
		}
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if err := cfg.set(k, v); err != nil {
			return nil, err
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) set(k, v string) error {
	switch k {
	case "base_config_dir":
		c.BaseConfigDir = v
	case "base_config":
		c.BaseConfig = v
	case "user_config_dir":
		c.UserConfigDir = v
	case "user_config":
		c.UserConfig = v
	case "full_config_dir":
		c.FullConfigDir = v
	case "full_config":
		c.FullConfig = v
	case "config_mods":
		c.ConfigMods = v
	case "restart":
		c.Restart = v
	case "config_date":
		c.ConfigDate = v
	case "run_length":
		if v == "?" || v == "" {
			c.RunLength = 0
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("run_length %q: %w", v, err)
		}
		c.RunLength = n
	case "t100":
		c.T100 = strings.EqualFold(v, "true")
	default:
		if c.Extra == nil {
			c.Extra = map[string]string{}
		}
		c.Extra[k] = v
	}
	return nil
}

// Write serialises the configuration in a stable order.
func (c *Config) Write(w io.Writer) error {
	bw := bufio.NewWriter(w)
	put := func(k, v string) {
		if v != "" {
			fmt.Fprintf(bw, "%s: %s\n", k, v)
		}
	}
	if c.BaseConfig != "" {
		put("base_config_dir", c.BaseConfigDir)
		put("base_config", c.BaseConfig)
	}
	if c.UserConfig != "" {
		put("user_config_dir", c.UserConfigDir)
		put("user_config", c.UserConfig)
	}
	if c.FullConfig != "" {
		put("full_config_dir", c.FullConfigDir)
		put("full_config", c.FullConfig)
	}
	put("config_mods", c.ConfigMods)
	put("config_date", c.ConfigDate)
	runLength := "?"
	if c.RunLength > 0 {
		runLength = strconv.Itoa(c.RunLength)
	}
	fmt.Fprintf(bw, "run_length: %s\n", runLength)
	fmt.Fprintf(bw, "t100: %t\n", c.T100)
	put("restart", c.Restart)

	keys := make([]string, 0, len(c.Extra))
	for k := range c.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		put(k, c.Extra[k])
	}
	return bw.Flush()
}

// WriteFile replaces the file at path.
func (c *Config) WriteFile(path string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create job config: %w", err)
	}
	defer func() {
		err = errors.Join(err, f.Close())
	}()
	return c.Write(f)
}
