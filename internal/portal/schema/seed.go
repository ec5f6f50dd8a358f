package schema

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed seed/default.yaml
var defaultSeed []byte

// SeedFile is the YAML layout of a reference-data file. Any section may be
// omitted; a seed directory may split sections across files.
type SeedFile struct {
	Services   []Service   `yaml:"services"`
	Documents  []Document  `yaml:"documents"`
	Procedures []Procedure `yaml:"procedures"`
	FAQ        []FAQ       `yaml:"faq"`
}

// Validate checks every record in the file.
func (s *SeedFile) Validate() error {
	for i := range s.Services {
		if err := s.Services[i].Validate(); err != nil {
			return err
		}
	}
	for i := range s.Documents {
		if err := s.Documents[i].Validate(); err != nil {
			return err
		}
	}
	for i := range s.Procedures {
		if err := s.Procedures[i].Validate(); err != nil {
			return err
		}
	}
	for i := range s.FAQ {
		if err := s.FAQ[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Merge appends other's records to s.
func (s *SeedFile) Merge(other *SeedFile) {
	s.Services = append(s.Services, other.Services...)
	s.Documents = append(s.Documents, other.Documents...)
	s.Procedures = append(s.Procedures, other.Procedures...)
	s.FAQ = append(s.FAQ, other.FAQ...)
}

// Len is the total number of records.
func (s *SeedFile) Len() int {
	return len(s.Services) + len(s.Documents) + len(s.Procedures) + len(s.FAQ)
}

// ParseSeed decodes and validates YAML seed data. Unknown keys are rejected.
func ParseSeed(data []byte) (*SeedFile, error) {
	var seed SeedFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&seed); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse seed: %w", err)
	}
	if err := seed.Validate(); err != nil {
		return nil, fmt.Errorf("invalid seed: %w", err)
	}
	return &seed, nil
}

// DefaultSeed returns the reference data compiled into the binary.
func DefaultSeed() (*SeedFile, error) {
	return ParseSeed(defaultSeed)
}

// ReadSeedFile reads one YAML seed file.
func ReadSeedFile(path string) (*SeedFile, error) {
	// #nosec G304 - path comes from configuration
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	seed, err := ParseSeed(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return seed, nil
}

// IsSeedFile reports whether name looks like a YAML seed file.
func IsSeedFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}

// ReadSeedDir reads every *.yaml / *.yml file in dir in name order and merges them.
func ReadSeedDir(dir string) (*SeedFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !IsSeedFile(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	merged := &SeedFile{}
	for _, name := range names {
		seed, err := ReadSeedFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		merged.Merge(seed)
	}
	return merged, nil
}
