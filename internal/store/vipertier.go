package store

import (
	"github.com/spf13/viper"

	"zm-cli/internal/errs"
)

// ViperTier backs the plain tier with the CLI config file. Values are
// visible to the usual viper precedence (flags, environment, file),
// which is exactly what we want for non-secret settings like the base
// URL.
type ViperTier struct{}

func NewViperTier() *ViperTier {
	return &ViperTier{}
}

func (t *ViperTier) Write(key, value string) error {
	viper.Set(key, value)
	if err := writeConfig(); err != nil {
		return &errs.StorageError{Op: "write", Key: key, Err: err}
	}
	return nil
}

func (t *ViperTier) Read(key string) (string, bool, error) {
	if !viper.IsSet(key) {
		return "", false, nil
	}
	return viper.GetString(key), true, nil
}

func (t *ViperTier) Delete(key string) error {
	if !viper.IsSet(key) {
		return nil
	}
	viper.Set(key, "")
	if err := writeConfig(); err != nil {
		return &errs.StorageError{Op: "delete", Key: key, Err: err}
	}
	return nil
}

func writeConfig() error {
	if err := viper.WriteConfig(); err != nil {
		// First write: the config file does not exist yet.
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return viper.SafeWriteConfig()
		}
		return err
	}
	return nil
}
