package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/hay-kot/criterio"
)

// Validate checks that the configuration is structurally valid. It does not
// touch the filesystem; the working directory and scripts are checked when a
// run starts so that a missing environment is reported as a fatal run error.
func (c *Config) Validate() error {
	return criterio.ValidateStruct(
		criterio.Run("working_directory", c.WorkingDirectory, required),
		c.validateSteps(),
		criterio.Run("delay", c.RawDelay, nonNegativeDuration),
		criterio.Run("timeout", c.RawTimeout, nonNegativeDuration),
		criterio.Run("archive.retention", c.Archive.RawRetention, nonNegativeDuration),
		criterio.Run("server.step_timeout", c.Server.RawStepTimeout, nonNegativeDuration),
		c.validateLimits(),
		c.validateFolders(),
	)
}

func (c *Config) validateSteps() error {
	if len(c.Steps) == 0 {
		return criterio.NewFieldErrors("steps", fmt.Errorf("at least one step is required"))
	}

	var errs criterio.FieldErrorsBuilder
	seen := make(map[string]bool, len(c.Steps))

	for i, s := range c.Steps {
		field := fmt.Sprintf("steps[%d]", i)

		if strings.TrimSpace(s.Name) == "" {
			errs = errs.Append(field+".name", fmt.Errorf("is required"))
			continue
		}
		if strings.ContainsAny(s.Name, `/\`) {
			errs = errs.Append(field+".name", fmt.Errorf("must not contain path separators"))
		}
		if seen[s.Name] {
			errs = errs.Append(field+".name", fmt.Errorf("duplicate name %q", s.Name))
		}
		seen[s.Name] = true

		if s.Script == "" {
			errs = errs.Append(field+".script", fmt.Errorf("is required"))
		} else if !filepath.IsAbs(s.Script) {
			errs = errs.Append(field+".script", fmt.Errorf("%s is not an absolute path", s.Script))
		}
	}

	return errs.ToError()
}

func (c *Config) validateFolders() error {
	var errs criterio.FieldErrorsBuilder
	for i, f := range c.Output.Folders {
		if strings.TrimSpace(f) == "" || strings.ContainsAny(f, `/\`) || f == "." || f == ".." {
			errs = errs.Append(fmt.Sprintf("output.folders[%d]", i), fmt.Errorf("invalid folder name %q", f))
		}
	}
	return errs.ToError()
}

func (c *Config) validateLimits() error {
	var errs criterio.FieldErrorsBuilder
	if c.RawMaxOutput < 0 {
		errs = errs.Append("max_output", fmt.Errorf("must not be negative, got %d", c.RawMaxOutput))
	}
	if c.History.Size < 0 {
		errs = errs.Append("history.size", fmt.Errorf("must not be negative, got %d", c.History.Size))
	}
	return errs.ToError()
}

func required(s string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("is required")
	}
	return nil
}

func nonNegativeDuration(s string) error {
	if s == "" {
		return nil
	}
	d, err := parseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	if d < 0 {
		return fmt.Errorf("must not be negative, got %s", d)
	}
	return nil
}
