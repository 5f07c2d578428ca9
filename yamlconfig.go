package eventproc

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadOptionsFile reads an Options from a YAML file, applies defaults to
// any zero-valued field, and validates the result.
func LoadOptionsFile(path string) (Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Options{}, fmt.Errorf("read options file %s: %w", path, err)
	}

	opts := Options{}
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return Options{}, fmt.Errorf("parse options file %s: %w", path, err)
	}

	opts.setDefaults()
	if err := opts.Validate(); err != nil {
		return Options{}, fmt.Errorf("invalid options in %s: %w", path, err)
	}

	return opts, nil
}
