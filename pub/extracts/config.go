package extracts

import (
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/Badsworth/pfml-scripts-sub004/conf"
)

// Config holds the storage areas an import run moves extract files between.
// Directories may be local paths or s3:// URIs.
type Config struct {
	ReceivedDir  string `conf:"PUB_EXTRACT_RECEIVED_DIR"`
	ProcessedDir string `conf:"PUB_EXTRACT_PROCESSED_DIR"`
	SkippedDir   string `conf:"PUB_EXTRACT_SKIPPED_DIR"`
	ErrorDir     string `conf:"PUB_EXTRACT_ERROR_DIR"`

	// Optional yaml file overriding the default extract family.
	FamilyFile string `conf:"PUB_EXTRACT_FAMILY_FILE" conf_default:""`
}

func LoadConfig() (Config, error) {
	var cfg Config
	if err := conf.Checkout(&cfg); err != nil {
		return cfg, errors.Wrap(err, "could not load extract config")
	}
	return cfg, nil
}

// Family names the feeds that make up one complete extract date group. A
// group is only processable once every feed is present for the same
// timestamp.
type Family struct {
	Name  string   `mapstructure:"name"`
	Feeds []string `mapstructure:"feeds"`
}

// DefaultFamily is the claims-system extract family this engine consumes.
func DefaultFamily() Family {
	return Family{
		Name: "fineos-payments",
		Feeds: []string{
			feedClaimants,
			feedRequestedAbsences,
			feedPaymentLines,
			feedPaymentDetails,
			feedClaimDetails,
		},
	}
}

// LoadFamily reads a family definition from a yaml file; an empty path
// returns the default family.
func LoadFamily(path string) (Family, error) {
	if path == "" {
		return DefaultFamily(), nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return Family{}, errors.Wrapf(err, "could not read extract family file %s", path)
	}

	var family Family
	if err := v.Unmarshal(&family); err != nil {
		return Family{}, errors.Wrapf(err, "could not parse extract family file %s", path)
	}
	if family.Name == "" || len(family.Feeds) == 0 {
		return Family{}, errors.Errorf("extract family file %s must declare a name and at least one feed", path)
	}

	for _, feed := range family.Feeds {
		if _, ok := stagingTargets[feed]; !ok {
			return Family{}, errors.Errorf("extract family file %s names unknown feed %s", path, feed)
		}
	}

	return family, nil
}
