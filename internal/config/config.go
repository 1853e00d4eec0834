package config

import (
	"fmt"
	"os"
	"sort"

	"github.com/google/uuid"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Delivery types
const (
	DeliverySeq = "seq" // demultiplexed FASTQ + QC
	DeliveryBCL = "bcl" // per-lane tarballs of the raw run folder
)

// Tool runners
const (
	RunnerExec   = "exec"
	RunnerDocker = "docker"
)

// Config is the top-level pipeline configuration document.
// It is loaded once per run and treated as read-only afterwards: every
// component receives the same *Config and none of them mutate it.
type Config struct {
	OutputDir             string         `yaml:"output_dir"`
	InputDirs             []string       `yaml:"input_dirs"`
	Cores                 int            `yaml:"cores,omitempty"`
	Lanes                 []int          `yaml:"lanes,omitempty"` // explicit lane override
	ProjectUUID           string         `yaml:"project_uuid,omitempty"`
	DeliveryType          []string       `yaml:"delivery_type,omitempty"`
	UndeterminedBasesmask string         `yaml:"undetermined_basesmask,omitempty"` // "keep undetermined" designator
	StrictInterimMatching bool           `yaml:"strict_interim_matching,omitempty"`
	BarcodeMismatches     int            `yaml:"barcode_mismatches,omitempty"`
	Flowcell              FlowcellConfig `yaml:"flowcell"`
	Tools                 ToolsConfig    `yaml:"tools,omitempty"`
	Ledger                LedgerConfig   `yaml:"ledger,omitempty"`
}

// FlowcellConfig describes the sequencing run being demultiplexed.
type FlowcellConfig struct {
	NumLanes           int       `yaml:"num_lanes"`
	VendorID           string    `yaml:"vendor_id"`
	Machine            string    `yaml:"sequencing_machine"`
	RunNumber          string    `yaml:"run_number"`
	RTAVersion         int       `yaml:"rta_version,omitempty"` // 0 = detect from RunParameters.xml
	DemuxReads         string    `yaml:"demux_reads"`
	DemuxReadsOverride []string  `yaml:"demux_reads_override,omitempty"`
	Libraries          []Library `yaml:"libraries"`
}

// Library is one sample loaded on the flowcell.
type Library struct {
	Name      string `yaml:"name"`
	Barcode   string `yaml:"barcode,omitempty"`
	Barcode2  string `yaml:"barcode2,omitempty"`
	Reference string `yaml:"reference,omitempty"`
	Lanes     []int  `yaml:"lanes"`
}

// ToolsConfig selects how external demux/QC tools are invoked.
type ToolsConfig struct {
	Runner string `yaml:"runner,omitempty"` // "exec" (default) or "docker"
	Image  string `yaml:"image,omitempty"`  // required when runner is "docker"
}

// LedgerConfig enables mirroring stage transitions to Redis.
type LedgerConfig struct {
	RedisAddr string `yaml:"redis_addr,omitempty"` // empty disables the ledger
	Instance  string `yaml:"instance,omitempty"`   // defaults to the flowcell vendor ID
}

// Overrides are values supplied on the command line. Non-empty fields win
// over the document.
type Overrides struct {
	OutputDir   string
	InputDirs   []string
	ProjectUUID string
}

// envOverrides are read from DEMUX_* environment variables.
type envOverrides struct {
	Cores     int    `envconfig:"CORES"`
	RedisAddr string `envconfig:"REDIS_ADDR"`
	Runner    string `envconfig:"RUNNER"`
	Image     string `envconfig:"IMAGE"`
}

// Load reads and validates the configuration document at path.
func Load(path string) (*Config, error) {
	return LoadWithOverrides(path, Overrides{})
}

// LoadWithOverrides reads the document at path, applies environment and
// command line overrides, fills defaults and validates the result.
func LoadWithOverrides(path string, ov Overrides) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, fmt.Errorf("failed to read environment overrides: %w", err)
	}
	cfg.applyOverrides(ov)
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyEnv() error {
	var env envOverrides
	if err := envconfig.Process("demux", &env); err != nil {
		return err
	}
	if env.Cores > 0 {
		c.Cores = env.Cores
	}
	if env.RedisAddr != "" {
		c.Ledger.RedisAddr = env.RedisAddr
	}
	if env.Runner != "" {
		c.Tools.Runner = env.Runner
	}
	if env.Image != "" {
		c.Tools.Image = env.Image
	}
	return nil
}

func (c *Config) applyOverrides(ov Overrides) {
	if ov.OutputDir != "" {
		c.OutputDir = ov.OutputDir
	}
	if len(ov.InputDirs) > 0 {
		c.InputDirs = append([]string(nil), ov.InputDirs...)
	}
	if ov.ProjectUUID != "" {
		c.ProjectUUID = ov.ProjectUUID
	}
}

func (c *Config) applyDefaults() {
	if c.Cores < 1 {
		c.Cores = 1
	}
	if len(c.DeliveryType) == 0 {
		c.DeliveryType = []string{DeliverySeq}
	}
	if c.Tools.Runner == "" {
		c.Tools.Runner = RunnerExec
	}
	if c.Ledger.Instance == "" {
		c.Ledger.Instance = c.Flowcell.VendorID
	}
}

// Validate performs strict validation on the configuration. All failures are
// *ConfigurationError values wrapping ErrInvalidConfig.
func (c *Config) Validate() error {
	if c.OutputDir == "" {
		return invalidf("output_dir", "is required")
	}
	if len(c.InputDirs) == 0 {
		return invalidf("input_dirs", "at least one input directory is required")
	}
	if c.ProjectUUID != "" {
		if _, err := uuid.Parse(c.ProjectUUID); err != nil {
			return invalidf("project_uuid", "not a valid UUID: %q", c.ProjectUUID)
		}
	}
	if c.BarcodeMismatches < 0 {
		return invalidf("barcode_mismatches", "must be >= 0, got %d", c.BarcodeMismatches)
	}

	for _, d := range c.DeliveryType {
		if d != DeliverySeq && d != DeliveryBCL {
			return invalidf("delivery_type", "unknown delivery type %q (must be 'seq' or 'bcl')", d)
		}
	}

	if err := c.Flowcell.validate(); err != nil {
		return err
	}

	for _, lane := range c.Lanes {
		if lane < 1 || lane > c.Flowcell.NumLanes {
			return invalidf("lanes", "lane %d outside 1..%d", lane, c.Flowcell.NumLanes)
		}
	}

	if c.Delivers(DeliverySeq) && len(c.LaneSet()) == 0 {
		return invalidf("lanes", "empty lane set: configure lanes or assign libraries to lanes")
	}

	if c.UndeterminedBasesmask != "" && !contains(c.Flowcell.DemuxReadsOverride, c.UndeterminedBasesmask) {
		return invalidf("undetermined_basesmask", "%q is not one of flowcell.demux_reads_override", c.UndeterminedBasesmask)
	}

	switch c.Tools.Runner {
	case RunnerExec:
	case RunnerDocker:
		if c.Tools.Image == "" {
			return invalidf("tools.image", "is required when tools.runner is 'docker'")
		}
	default:
		return invalidf("tools.runner", "unknown runner %q (must be 'exec' or 'docker')", c.Tools.Runner)
	}

	return nil
}

func (f *FlowcellConfig) validate() error {
	if f.NumLanes < 1 {
		return invalidf("flowcell.num_lanes", "must be >= 1, got %d", f.NumLanes)
	}
	if f.VendorID == "" {
		return invalidf("flowcell.vendor_id", "is required")
	}
	if f.DemuxReads == "" && len(f.DemuxReadsOverride) == 0 {
		return invalidf("flowcell.demux_reads", "is required when demux_reads_override is empty")
	}
	if f.DemuxReads != "" {
		if _, err := ParseReadStructure(f.DemuxReads); err != nil {
			return invalidf("flowcell.demux_reads", "%v", err)
		}
	}
	for i, mask := range f.DemuxReadsOverride {
		if mask == "" {
			return invalidf("flowcell.demux_reads_override", "entry %d is empty", i)
		}
		// Every sub-job must fill the same R1..Rn slots.
		if first := f.DemuxReadsOverride[0]; BasesmaskTemplateReads(mask) != BasesmaskTemplateReads(first) {
			return invalidf("flowcell.demux_reads_override", "entry %d (%q) has %d template reads, entry 0 (%q) has %d",
				i, mask, BasesmaskTemplateReads(mask), first, BasesmaskTemplateReads(first))
		}
	}

	seen := make(map[string]bool)
	for i, lib := range f.Libraries {
		if lib.Name == "" {
			return invalidf("flowcell.libraries", "library %d: name is required", i)
		}
		if seen[lib.Name] {
			return invalidf("flowcell.libraries", "duplicate library name %q", lib.Name)
		}
		seen[lib.Name] = true
		for _, lane := range lib.Lanes {
			if lane < 1 || lane > f.NumLanes {
				return invalidf("flowcell.libraries", "library %q: lane %d outside 1..%d", lib.Name, lane, f.NumLanes)
			}
		}
	}

	return nil
}

// Delivers reports whether the given delivery type is configured.
func (c *Config) Delivers(kind string) bool {
	return contains(c.DeliveryType, kind)
}

// FlowcellID returns the identifier used in output paths.
func (c *Config) FlowcellID() string {
	return c.Flowcell.VendorID
}

// LaneSet returns the lanes to demultiplex: the explicit lanes override when
// configured, otherwise the union of all library lanes. The result is sorted
// and free of duplicates.
func (c *Config) LaneSet() []int {
	if len(c.Lanes) > 0 {
		return sortedUnique(c.Lanes)
	}
	var all []int
	for _, lib := range c.Flowcell.Libraries {
		all = append(all, lib.Lanes...)
	}
	return sortedUnique(all)
}

// LibrariesOnLane returns the libraries assigned to lane, in configuration order.
func (c *Config) LibrariesOnLane(lane int) []Library {
	var libs []Library
	for _, lib := range c.Flowcell.Libraries {
		for _, l := range lib.Lanes {
			if l == lane {
				libs = append(libs, lib)
				break
			}
		}
	}
	return libs
}

// SampleNumbers returns the bcl2fastq S<n> number of every library that
// has at least one lane in LaneSet. Numbers follow configuration order among
// those libraries, starting at 1, which is the order of first appearance in
// the sample sheets. Libraries outside the lane set get no number.
func (c *Config) SampleNumbers() map[string]int {
	lanes := make(map[int]bool)
	for _, l := range c.LaneSet() {
		lanes[l] = true
	}
	numbers := make(map[string]int, len(c.Flowcell.Libraries))
	for _, lib := range c.Flowcell.Libraries {
		for _, l := range lib.Lanes {
			if lanes[l] {
				numbers[lib.Name] = len(numbers) + 1
				break
			}
		}
	}
	return numbers
}

func sortedUnique(in []int) []int {
	seen := make(map[int]bool, len(in))
	out := make([]int, 0, len(in))
	for _, v := range in {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Ints(out)
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
