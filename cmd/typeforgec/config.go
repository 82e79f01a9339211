package main

import (
	"os"

	"gopkg.in/yaml.v3"
)

// config is the optional typeforge.yaml sidecar, merged with command-line
// flags (flags win when both are set). Grounded on the config shapes
// other_examples/ tools in the retrieval pack load via yaml.v3.
type config struct {
	ClassDir    string   `yaml:"classDir"`
	RootClasses []string `yaml:"rootClasses"`
	Output      string   `yaml:"output"`
	GCArrays    *bool    `yaml:"gcArrays"`
}

func loadConfig(path string) (config, error) {
	var c config
	if path == "" {
		return c, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return c, err
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return c, err
	}
	return c, nil
}
