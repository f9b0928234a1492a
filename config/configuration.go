package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"
)

var (
	// DefaultConfigFiles is the file names from which we attempt to read configuration.
	DefaultConfigFiles = []string{"config.yml", "config.yaml"}

	// DefaultSuppressionFiles is the file names from which we attempt to read suppressions.
	DefaultSuppressionFiles = []string{"suppressions.yml", "suppressions.yaml"}

	defaultUserConfigDirs = []string{"~/.busfuzz"}
	defaultNixConfigDirs  = []string{"/etc/busfuzz"}

	ErrNoConfigFile = fmt.Errorf("Cannot determine default configuration path. No file %v in %v", DefaultConfigFiles, DefaultConfigSearchDirectories())
)

// DefaultConfigSearchDirectories returns the default folder locations of the config
func DefaultConfigSearchDirectories() []string {
	dirs := make([]string, 0, len(defaultUserConfigDirs)+len(defaultNixConfigDirs))
	dirs = append(dirs, defaultUserConfigDirs...)
	return append(dirs, defaultNixConfigDirs...)
}

// FileExists checks to see if a file exist at the provided path.
func FileExists(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			// ignore missing files
			return false, nil
		}
		return false, err
	}
	_ = f.Close()
	return true, nil
}

// findInDirs returns the first existing combination of dirs and names, or an empty string.
func findInDirs(dirs, names []string) string {
	for _, dir := range dirs {
		dirPath, err := homedir.Expand(dir)
		if err != nil {
			continue
		}
		for _, name := range names {
			path := filepath.Join(dirPath, name)
			if ok, _ := FileExists(path); ok {
				return path
			}
		}
	}
	return ""
}

// FindDefaultConfigPath returns the first path that contains a config file.
// If none of the combination of DefaultConfigSearchDirectories() and DefaultConfigFiles
// contains a config file, return empty string.
func FindDefaultConfigPath() string {
	return findInDirs(DefaultConfigSearchDirectories(), DefaultConfigFiles)
}

// FindDefaultSuppressionsPath is FindDefaultConfigPath for the suppressions file.
func FindDefaultSuppressionsPath() string {
	return findInDirs(DefaultConfigSearchDirectories(), DefaultSuppressionFiles)
}

// configFileSettings holds the flag values of a config file, keyed by flag name.
type configFileSettings struct {
	Settings   map[string]interface{} `yaml:",inline"`
	sourceFile string
}

func (c *configFileSettings) Source() string {
	return c.sourceFile
}

func (c *configFileSettings) Int(name string) (int, error) {
	if raw, ok := c.Settings[name]; ok {
		if v, ok := raw.(int); ok {
			return v, nil
		}
		return 0, fmt.Errorf("expected int found %T for %s", raw, name)
	}
	return 0, nil
}

func (c *configFileSettings) Duration(name string) (time.Duration, error) {
	if raw, ok := c.Settings[name]; ok {
		switch v := raw.(type) {
		case time.Duration:
			return v, nil
		case string:
			return time.ParseDuration(v)
		}
		return 0, fmt.Errorf("expected duration found %T for %s", raw, name)
	}
	return 0, nil
}

func (c *configFileSettings) Float64(name string) (float64, error) {
	if raw, ok := c.Settings[name]; ok {
		switch v := raw.(type) {
		case float64:
			return v, nil
		case int:
			return float64(v), nil
		}
		return 0, fmt.Errorf("expected float found %T for %s", raw, name)
	}
	return 0, nil
}

func (c *configFileSettings) String(name string) (string, error) {
	if raw, ok := c.Settings[name]; ok {
		if v, ok := raw.(string); ok {
			return v, nil
		}
		return "", fmt.Errorf("expected string found %T for %s", raw, name)
	}
	return "", nil
}

func (c *configFileSettings) StringSlice(name string) ([]string, error) {
	if raw, ok := c.Settings[name]; ok {
		if slice, ok := raw.([]interface{}); ok {
			strSlice := make([]string, len(slice))
			for i, v := range slice {
				str, ok := v.(string)
				if !ok {
					return nil, fmt.Errorf("expected string, found %T for %v", v, v)
				}
				strSlice[i] = str
			}
			return strSlice, nil
		}
		return nil, fmt.Errorf("expected string slice found %T for %s", raw, name)
	}
	return nil, nil
}

func (c *configFileSettings) IntSlice(name string) ([]int, error) {
	if raw, ok := c.Settings[name]; ok {
		if slice, ok := raw.([]interface{}); ok {
			intSlice := make([]int, len(slice))
			for i, v := range slice {
				n, ok := v.(int)
				if !ok {
					return nil, fmt.Errorf("expected int, found %T for %v ", v, v)
				}
				intSlice[i] = n
			}
			return intSlice, nil
		}
		return nil, fmt.Errorf("expected int slice found %T for %s", raw, name)
	}
	return nil, nil
}

func (c *configFileSettings) Generic(name string) (cli.Generic, error) {
	return nil, errors.New("option type Generic not supported")
}

func (c *configFileSettings) Bool(name string) (bool, error) {
	if raw, ok := c.Settings[name]; ok {
		if v, ok := raw.(bool); ok {
			return v, nil
		}
		return false, fmt.Errorf("expected boolean found %T for %s", raw, name)
	}
	return false, nil
}

// ReadConfigFile returns the settings of the file named by the "config" flag, or of the first default
// config file when the flag is unset. ErrNoConfigFile is returned when there is no file to read.
func ReadConfigFile(c *cli.Context, log *zerolog.Logger) (*configFileSettings, error) {
	configFile := c.String("config")
	if configFile == "" {
		configFile = FindDefaultConfigPath()
	}
	if configFile == "" {
		return nil, ErrNoConfigFile
	}
	configFile, err := homedir.Expand(configFile)
	if err != nil {
		return nil, errors.Wrap(err, "cannot expand config file path")
	}

	log.Debug().Msgf("Loading configuration from %s", configFile)
	file, err := os.Open(configFile)
	if err != nil {
		if os.IsNotExist(err) {
			err = ErrNoConfigFile
		}
		return nil, err
	}
	defer file.Close()

	settings := &configFileSettings{sourceFile: configFile}
	if err := yaml.NewDecoder(file).Decode(settings); err != nil {
		if err == io.EOF {
			log.Error().Msgf("Configuration file %s was empty", configFile)
			return settings, nil
		}
		return nil, errors.Wrap(err, "error parsing YAML in config file at "+configFile)
	}
	return settings, nil
}
