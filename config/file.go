package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// File is the on-disk form written by `fono setup`.
type File struct {
	APIURL       string `yaml:"api_url,omitempty"`
	Token        string `yaml:"token,omitempty"`
	ClientID     int64  `yaml:"client_id,omitempty"`
	ClientName   string `yaml:"client_name,omitempty"`
	SpecialistID int64  `yaml:"specialist_id,omitempty"`
	Age          int    `yaml:"age,omitempty"`
	UseGemini    *bool  `yaml:"use_gemini,omitempty"`
	Device       string `yaml:"device,omitempty"`
	ExportDir    string `yaml:"export_dir,omitempty"`
}

func FileFrom(c Config) File {
	gemini := c.UseGemini
	return File{
		APIURL:       c.APIURL,
		Token:        c.Token,
		ClientID:     c.ClientID,
		ClientName:   c.ClientName,
		SpecialistID: c.SpecialistID,
		Age:          c.Age,
		UseGemini:    &gemini,
		Device:       c.Device,
		ExportDir:    c.ExportDir,
	}
}

// Save writes f to path, keeping keys of an existing file that f leaves unset.
func Save(path string, f File) error {
	merged := map[string]any{}
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &merged); err != nil {
			return fmt.Errorf("parsing %s: %w", path, err)
		}
		if merged == nil {
			merged = map[string]any{}
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	data, err := yaml.Marshal(f)
	if err != nil {
		return err
	}
	var update map[string]any
	if err := yaml.Unmarshal(data, &update); err != nil {
		return err
	}
	for k, v := range update {
		merged[k] = v
	}

	out, err := yaml.Marshal(merged)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	// The file holds a bearer token.
	return os.WriteFile(path, out, 0600)
}
