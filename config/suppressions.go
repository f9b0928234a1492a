package config

import (
	"bytes"
	"io"
	"os"
	"sort"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Suppression excludes one method from fuzzing.
type Suppression struct {
	Method string `yaml:"method"`
	Reason string `yaml:"reason"`
}

// Suppressions maps interface names to their suppressed methods.
type Suppressions struct {
	Interfaces map[string][]Suppression `yaml:"suppressions"`
	sourceFile string
}

// Source is the file the suppressions were read from, empty when none was read.
func (s *Suppressions) Source() string {
	if s == nil {
		return ""
	}
	return s.sourceFile
}

// Suppressed reports whether method of iface must not be invoked, and why.
func (s *Suppressions) Suppressed(iface, method string) (string, bool) {
	if s == nil {
		return "", false
	}
	for _, sup := range s.Interfaces[iface] {
		if sup.Method == method {
			return sup.Reason, true
		}
	}
	return "", false
}

// Len is the number of suppressed methods.
func (s *Suppressions) Len() int {
	if s == nil {
		return 0
	}
	n := 0
	for _, methods := range s.Interfaces {
		n += len(methods)
	}
	return n
}

// InterfaceNames lists the interfaces with suppressions, sorted.
func (s *Suppressions) InterfaceNames() []string {
	if s == nil {
		return nil
	}
	names := make([]string, 0, len(s.Interfaces))
	for name := range s.Interfaces {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ParseSuppressions decodes a suppressions document. Unknown keys are rejected so that a typo does not
// silently let a destructive method run.
func ParseSuppressions(r io.Reader) (*Suppressions, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	s := &Suppressions{}
	if err := dec.Decode(s); err != nil && err != io.EOF {
		return nil, errors.Wrap(err, "error parsing suppressions")
	}
	for iface, methods := range s.Interfaces {
		for i, sup := range methods {
			if sup.Method == "" {
				return nil, errors.Errorf("suppression %d of %s has no method", i, iface)
			}
		}
	}
	return s, nil
}

// LoadSuppressions reads the suppressions file at path. An empty path means the first default
// suppressions file, and no suppressions at all when there is none.
func LoadSuppressions(path string) (*Suppressions, error) {
	if path == "" {
		path = FindDefaultSuppressionsPath()
		if path == "" {
			return &Suppressions{}, nil
		}
	}
	path, err := homedir.Expand(path)
	if err != nil {
		return nil, errors.Wrap(err, "cannot expand suppressions file path")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "cannot read suppressions file")
	}
	s, err := ParseSuppressions(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrapf(err, "in %s", path)
	}
	s.sourceFile = path
	return s, nil
}
