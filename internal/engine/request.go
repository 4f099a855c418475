// SPDX-License-Identifier: AGPL-3.0-or-later
package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
)

// ErrConfigSelection reports an invalid combination of configuration sources.
var ErrConfigSelection = errors.New("invalid configuration selection")

// Request describes one job to configure.
type Request struct {
	// JobName is the job path relative to the jobs directory.
	JobName    string
	RunLength  int
	BaseConfig string
	UserConfig string
	FullConfig string
	// ConfigMods is a file with additional key=value overrides.
	ConfigMods string
	// Restart names a job (or an output directory) to continue from.
	Restart   string
	T100      bool
	Overwrite bool
	// Strict fails when a configuration key matches no template entry.
	Strict bool
}

// ArgError reports a bad request field.
type ArgError struct {
	Arg string
	Msg string
}

func (e *ArgError) Error() string { return fmt.Sprintf("%s: %s", e.Arg, e.Msg) }

func (e *ArgError) Unwrap() error { return ErrConfigSelection }

// BaseAndUser reports whether the request uses a base+user pair.
func (r Request) BaseAndUser() bool {
	return r.BaseConfig != "" && r.UserConfig != ""
}

// Validate checks that exactly one configuration source was chosen.
func (r Request) Validate() error {
	if strings.TrimSpace(r.JobName) == "" {
		return &ArgError{Arg: "job", Msg: "required"}
	}
	if r.RunLength <= 0 {
		return &ArgError{Arg: "run-length", Msg: "must be a positive number of years"}
	}
	if (r.BaseConfig == "") != (r.UserConfig == "") {
		return &ArgError{Arg: "base-config", Msg: "base and user configurations must be given together"}
	}
	if !r.BaseAndUser() && r.FullConfig == "" {
		return &ArgError{Arg: "config", Msg: "either base and user, or a full configuration must be specified"}
	}
	if r.BaseAndUser() && r.FullConfig != "" {
		return &ArgError{Arg: "config", Msg: "only one of base and user, or full configuration may be specified"}
	}
	if r.ConfigMods != "" && !r.BaseAndUser() {
		return &ArgError{Arg: "config-mods", Msg: "configuration mods can only be used with base and user configurations"}
	}
	return nil
}

// Flag names shared by the configure, plan and edit commands.
const (
	FlagBaseConfig = "base-config"
	FlagUserConfig = "user-config"
	FlagFullConfig = "config"
	FlagConfigMods = "config-mods"
	FlagRestart    = "restart"
	FlagT100       = "t100"
	FlagOverwrite  = "overwrite"
	FlagStrict     = "strict"
)

// RegisterFlags adds the configuration selection flags to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.StringP(FlagBaseConfig, "b", "", "base configuration name or path")
	fs.StringP(FlagUserConfig, "u", "", "user configuration name or path")
	fs.StringP(FlagFullConfig, "c", "", "full configuration name or path")
	fs.StringP(FlagConfigMods, "m", "", "file of additional key=value overrides")
	fs.StringP(FlagRestart, "r", "", "job or output directory to restart from")
	fs.Bool(FlagT100, false, `use "T100" timestepping`)
	fs.BoolP(FlagOverwrite, "O", false, "replace an existing job directory")
	fs.Bool(FlagStrict, false, "fail when a configuration key matches no namelist entry")
}

// BindFlags builds a request from flags registered with RegisterFlags.
func BindFlags(fs *pflag.FlagSet, jobName string, runLength int) (Request, error) {
	req := Request{JobName: jobName, RunLength: runLength}
	var err error
	get := func(dst *string, name string) {
		if err != nil {
			return
		}
		*dst, err = fs.GetString(name)
	}
	getBool := func(dst *bool, name string) {
		if err != nil {
			return
		}
		*dst, err = fs.GetBool(name)
	}
	get(&req.BaseConfig, FlagBaseConfig)
	get(&req.UserConfig, FlagUserConfig)
	get(&req.FullConfig, FlagFullConfig)
	get(&req.ConfigMods, FlagConfigMods)
	get(&req.Restart, FlagRestart)
	getBool(&req.T100, FlagT100)
	getBool(&req.Overwrite, FlagOverwrite)
	getBool(&req.Strict, FlagStrict)
	if err != nil {
		return Request{}, err
	}
	return req, req.Validate()
}
