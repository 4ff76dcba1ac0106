package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Init reads the config file and matching environment variables.
func Init(cfgFile string) {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}

		// Search config in home directory with name ".zm-cli" (without extension).
		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".zm-cli")
	}

	viper.SetEnvPrefix("ZM")
	viper.AutomaticEnv()

	// Missing config file is fine; first login creates it.
	_ = viper.ReadInConfig()
}

// SecretsPath is where the secure store tier lives: tokens and the
// remembered password, kept out of the readable config file.
func SecretsPath() string {
	if p := viper.GetString("secrets_file"); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".zm-cli-secrets.json"
	}
	return filepath.Join(home, ".zm-cli-secrets.json")
}
