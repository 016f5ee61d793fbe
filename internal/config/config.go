package config

import (
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Load fills config (a pointer to a struct) from a YAML file, with
// environment variables overriding individual keys. Env names are the config
// paths upper-cased with dots replaced by underscores, e.g. Redis.Pubsub.Pass
// becomes REDIS_PUBSUB_PASS. Fields left untouched keep the values config
// already holds, so the caller's struct doubles as the defaults.
func Load(file string, config any) error {
	v := viper.New()

	// Seed viper with the defaults so every key is known before env
	// overrides are resolved. AutomaticEnv only matches known keys.
	defaults := make(map[string]any)
	if err := mapstructure.Decode(config, &defaults); err != nil {
		return fmt.Errorf("decode defaults: %v", err)
	}
	if err := v.MergeConfigMap(defaults); err != nil {
		return fmt.Errorf("merge defaults: %v", err)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.MergeInConfig(); err != nil {
			return fmt.Errorf("read config from file %s: %v", file, err)
		}
	}

	if err := v.Unmarshal(config); err != nil {
		return fmt.Errorf("unmarshal config: %v", err)
	}

	return nil
}
