package debugedit

import (
	"gopkg.in/yaml.v3"
)

// fileConfig is the decoded shape of an optional .debugedit.yaml: every
// field a flag not given on the command line falls back to, per §6.
// viper decodes into flags directly (BindPFlag), but --dump-config
// renders this struct straight through yaml.v3 so a user can see exactly
// what would be read from a config file.
type fileConfig struct {
	BaseDir            string `yaml:"base_dir"`
	DestDir            string `yaml:"dest_dir"`
	ListFile           string `yaml:"list_file"`
	BuildID            bool   `yaml:"build_id"`
	BuildIDSeed        string `yaml:"build_id_seed"`
	NoRecomputeBuildID bool   `yaml:"no_recompute_build_id"`
	PreserveDates      bool   `yaml:"preserve_dates"`
	Verbose            bool   `yaml:"verbose"`
}

func (c fileConfig) dumpYAML() (string, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
