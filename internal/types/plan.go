// SPDX-License-Identifier: AGPL-3.0-or-later
package types

// Plan previews what configuring a job would produce, without writing.
type Plan struct {
	JobID      string            `json:"job_id" yaml:"job_id"`
	JobDir     string            `json:"job_dir" yaml:"job_dir"`
	ConfigKind string            `json:"config_kind" yaml:"config_kind"`
	RunLength  int               `json:"run_length" yaml:"run_length"`
	T100       bool              `json:"t100" yaml:"t100"`
	Restart    string            `json:"restart,omitempty" yaml:"restart,omitempty"`
	Modules    []string          `json:"modules" yaml:"modules"`
	Layers     []PlanLayer       `json:"layers" yaml:"layers"`
	Stepping   *PlanStepping     `json:"stepping,omitempty" yaml:"stepping,omitempty"`
	Defines    map[string]int    `json:"defines,omitempty" yaml:"defines,omitempty"`
	Namelists  []PlanNamelist    `json:"namelists" yaml:"namelists"`
	Derived    map[string]string `json:"derived,omitempty" yaml:"derived,omitempty"`
}

// PlanLayer names one configuration layer in precedence order.
type PlanLayer struct {
	Source string `json:"source" yaml:"source"`
	Keys   int    `json:"keys" yaml:"keys"`
}

// PlanStepping summarises the selected time-stepping row.
type PlanStepping struct {
	Steps    int    `json:"steps" yaml:"steps"`
	BioRatio int    `json:"bio_ratio" yaml:"bio_ratio"`
	Timestep string `json:"timestep" yaml:"timestep"`
}

// PlanNamelist maps a module to its template and output file.
type PlanNamelist struct {
	Module   string `json:"module" yaml:"module"`
	Prefix   string `json:"prefix" yaml:"prefix"`
	Template string `json:"template" yaml:"template"`
	Output   string `json:"output" yaml:"output"`
	Missing  bool   `json:"missing_template,omitempty" yaml:"missing_template,omitempty"`
}
