package standard

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// FileConfig is the on-disk shape of an optional "-arch <file>" YAML
// override, grounded on the config-file pattern used throughout the
// retrieved corpus for simulator/architecture knobs rather than a long
// flat flag list. Any zero-valued field is left at its CLI-flag or
// DefaultConstants() default by Apply.
type FileConfig struct {
	Cores  int  `yaml:"cores"`
	SASize int  `yaml:"sa_size"`
	VUSize int  `yaml:"vu_size"`
	WS     bool `yaml:"weight_stationary"`

	DataTypeWidth   int `yaml:"data_type_width"`
	BatchSize       int `yaml:"batch_size"`
	BufferSizeBytes int `yaml:"buffer_size_bytes"`
}

// ReadArchConfig parses a YAML architecture override file.
func ReadArchConfig(r io.Reader) (FileConfig, error) {
	var fc FileConfig
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&fc); err != nil && err != io.EOF {
		return FileConfig{}, fmt.Errorf("standard: parsing arch config: %w", err)
	}
	return fc, nil
}

// Apply overlays the non-zero fields of fc onto cfg and c, returning the
// merged results. CLI flags (already in cfg/c) win where the file is
// silent on a field.
func (fc FileConfig) Apply(cfg ArchConfig, c Constants) (ArchConfig, Constants) {
	if fc.Cores != 0 {
		cfg.NCores = fc.Cores
	}
	if fc.SASize != 0 {
		cfg.SASize = fc.SASize
	}
	if fc.VUSize != 0 {
		cfg.VUSize = fc.VUSize
	}
	if fc.WS {
		cfg.WS = true
	}
	if fc.DataTypeWidth != 0 {
		c.DataTypeWidth = fc.DataTypeWidth
	}
	if fc.BatchSize != 0 {
		c.BatchSize = fc.BatchSize
	}
	if fc.BufferSizeBytes != 0 {
		c.BufferSizeBytes = fc.BufferSizeBytes
	}
	return cfg, c
}
