package conf

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/superlearn/school-central/pkg/log"
)

func init() {
	viper.AutomaticEnv()
}

// LoadConfigFile reads a TOML configuration file into cfg and re-parses it
// whenever the file changes on disk. cfg must be a non-nil pointer.
func LoadConfigFile(confFile string, cfg interface{}) error {
	cfgValue := reflect.ValueOf(cfg)
	if cfgValue.Kind() != reflect.Ptr || cfgValue.IsNil() {
		return errors.New("cfg must be a pointer")
	}

	vCfg := viper.New()
	vCfg.SetConfigFile(confFile)
	vCfg.SetConfigType("toml")

	if err := vCfg.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read configuration file: %v", err)
	}

	vCfg.WatchConfig()
	vCfg.OnConfigChange(func(e fsnotify.Event) {
		log.Infof("configuration changed, re-parsing: %s", e.Name)
		if err := vCfg.Unmarshal(cfg); err != nil {
			log.Errorf("failed to unmarshal configuration file: %v", err)
		}
	})
	if err := vCfg.Unmarshal(cfg); err != nil {
		return fmt.Errorf("failed to unmarshal configuration file: %v", err)
	}

	return nil
}
