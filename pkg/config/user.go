// Package config reads and writes the dirsync user config, which remembers
// the server and local directory used by the last sync.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ghodss/yaml"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"

	"github.com/sidkik/dirsync/pkg/errors"
)

const (
	// UserConfigPath is the default path to the dirsync user config.
	UserConfigPath = "~/.dirsync.yaml"

	// InitialUserConfigVersion is the first version of the dirsync user
	// config. Config files that do not specify a version will default to this
	// version.
	InitialUserConfigVersion = "v1alpha1"

	// SupportedUserConfigVersion is the supported version of the dirsync
	// user config of the current binary.
	SupportedUserConfigVersion = "v1alpha1"

	// DefaultHost is the server host used when none is configured.
	DefaultHost = "localhost"

	// DefaultPort is the server port used when none is configured.
	DefaultPort = 6543

	// DefaultDir is the local root used when none is configured.
	DefaultDir = "."
)

// Mocked for unit testing.
var (
	fs            = afero.NewOsFs()
	homedirExpand = homedir.Expand
)

// malformedUserTemplate is shown when the user config isn't valid YAML, has
// fields of the wrong type, or has fields dirsync doesn't know about. The
// YAML library's error doesn't say which, so it's shown as is.
const malformedUserTemplate = "Couldn't read the dirsync config at %q.\n" +
	"Check that every field has the right type, and remove any fields " +
	"other than version, host, port and dir.\n\n" +
	"The parser reported:\n" +
	"%s"

// unsupportedVersionError is returned for configs written by a different
// version of dirsync.
type unsupportedVersionError struct {
	path, want, got string
}

func (err unsupportedVersionError) Error() string {
	return err.FriendlyMessage()
}

func (err unsupportedVersionError) FriendlyMessage() string {
	return fmt.Sprintf("The dirsync config at %q has version %q, "+
		"but this version of dirsync only reads %q.", err.path, err.got, err.want)
}

// User contains the connection settings remembered between runs.
type User struct {
	Version string `json:"version,omitempty"`
	Host    string `json:"host,omitempty"`
	Port    int    `json:"port,omitempty"`
	Dir     string `json:"dir,omitempty"`
}

// DefaultUser returns the settings used before any config is written.
func DefaultUser() User {
	return User{
		Version: SupportedUserConfigVersion,
		Host:    DefaultHost,
		Port:    DefaultPort,
		Dir:     DefaultDir,
	}
}

// ParseUser attempts to parse the User stored in the default path. If there
// is no config yet, the defaults are returned. Fields missing from the config
// also take their default values.
func ParseUser() (User, error) {
	path, err := GetUserConfigPath()
	if err != nil {
		return User{}, errors.WithContext(err, "expand config path")
	}

	config, err := readUser(path)
	if err != nil {
		if _, ok := err.(errors.FileNotFound); ok {
			return DefaultUser(), nil
		}
		return User{}, errors.WithContext(err, "parse")
	}

	if config.Host == "" {
		config.Host = DefaultHost
	}
	if config.Port == 0 {
		config.Port = DefaultPort
	}
	if config.Dir == "" {
		config.Dir = DefaultDir
	}

	config.Dir, err = homedirExpand(config.Dir)
	if err != nil {
		return User{}, errors.WithContext(err, "expand dir")
	}

	// Evaluate relative paths relative to the config path.
	if !filepath.IsAbs(config.Dir) {
		config.Dir = filepath.Join(filepath.Dir(path), config.Dir)
	}
	return config, nil
}

// readUser reads the config at `path`. Configs without a version are
// assumed to have the initial version.
func readUser(path string) (User, error) {
	contents, err := afero.ReadFile(fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return User{}, errors.FileNotFound{Path: path}
		}
		return User{}, errors.WithContext(err, "read file")
	}

	// The version is checked before unknown fields so that configs from
	// other versions get the more useful error.
	config := User{Version: InitialUserConfigVersion}
	if err := yaml.Unmarshal(contents, &config); err != nil {
		return User{}, errors.NewFriendlyError(malformedUserTemplate, path, err)
	}

	if config.Version != SupportedUserConfigVersion {
		return User{}, unsupportedVersionError{
			path: path,
			want: SupportedUserConfigVersion,
			got:  config.Version,
		}
	}

	if err := yaml.UnmarshalStrict(contents, &config, yaml.DisallowUnknownFields); err != nil {
		return User{}, errors.NewFriendlyError(malformedUserTemplate, path, err)
	}
	return config, nil
}

// WriteUser writes the given user config to disk.
func WriteUser(cfg User) error {
	cfg.Version = SupportedUserConfigVersion
	path, err := GetUserConfigPath()
	if err != nil {
		return errors.WithContext(err, "expand config path")
	}

	yamlBytes, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.WithContext(err, "marshal")
	}

	if err := afero.WriteFile(fs, path, yamlBytes, 0644); err != nil {
		return errors.WithContext(err, "write")
	}
	return nil
}

// GetUserConfigPath returns the path to the user's dirsync configuration.
// This path is expanded, so it can be directly passed to file operations.
func GetUserConfigPath() (string, error) {
	return homedirExpand(UserConfigPath)
}
