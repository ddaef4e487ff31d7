package output

import (
	"fmt"
	"gopkg.in/yaml.v3"
	"os"
	"time"
)

const SummaryFilename = "summary.yaml"

// Summary is the end-of-run record written next to the stores
type Summary struct {
	RunID         string        `yaml:"run_id"`
	Title         string        `yaml:"title"`
	Alias         string        `yaml:"alias"`
	Model         string        `yaml:"model"`
	Steps         int           `yaml:"steps"`
	LastSavedStep int           `yaml:"last_saved_step"`
	Converged     bool          `yaml:"converged"`
	Status        string        `yaml:"status"`
	Started       time.Time     `yaml:"started"`
	Elapsed       time.Duration `yaml:"elapsed"`
}

func WriteSummary(path string, s Summary) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}
	return nil
}

func ReadSummary(path string) (Summary, error) {
	var s Summary
	data, err := os.ReadFile(path)
	if err != nil {
		return s, err
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}
