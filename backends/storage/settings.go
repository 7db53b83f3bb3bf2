package storage

import (
	stderrors "errors"
	"fmt"
	"slices"

	"github.com/kbukum/backendkit/util"
)

// Storage drivers.
const (
	DriverLocal = "local"
	DriverS3    = "s3"
)

// DefaultRegion is used for s3 when no region is set.
const DefaultRegion = "us-east-1"

// Settings is the typed form of a storage provider's settings. The s3
// credentials come from the "access_key" and "secret_key" secrets.
type Settings struct {
	Driver         string `mapstructure:"driver"`
	BasePath       string `mapstructure:"base_path"`
	Bucket         string `mapstructure:"bucket"`
	Region         string `mapstructure:"region"`
	Endpoint       string `mapstructure:"endpoint"`
	ForcePathStyle bool   `mapstructure:"force_path_style"`
	MaxObjectSize  string `mapstructure:"max_object_size"`

	AccessKey string `mapstructure:"-"`
	SecretKey string `mapstructure:"-"`

	maxBytes int64
}

func (s *Settings) ApplyDefaults() {
	if s.Driver == "" {
		s.Driver = DriverLocal
	}
	if s.Driver == DriverLocal && s.BasePath == "" {
		s.BasePath = "./data/storage"
	}
	if s.Driver == DriverS3 && s.Region == "" {
		s.Region = DefaultRegion
	}
}

func (s *Settings) Validate() error {
	var errs []error
	if !slices.Contains([]string{DriverLocal, DriverS3}, s.Driver) {
		errs = append(errs, fmt.Errorf("unsupported driver %q", s.Driver))
	}
	if s.Driver == DriverS3 && s.Bucket == "" {
		errs = append(errs, stderrors.New("bucket is required for s3"))
	}
	if (s.AccessKey == "") != (s.SecretKey == "") {
		errs = append(errs, stderrors.New("access_key and secret_key must be set together"))
	}
	if s.MaxObjectSize != "" {
		s.maxBytes = util.ParseSize(s.MaxObjectSize, -1)
		if s.maxBytes <= 0 {
			errs = append(errs, fmt.Errorf("max_object_size %q is not a size", s.MaxObjectSize))
		}
	}
	return stderrors.Join(errs...)
}
