package conf

import (
	"fmt"
	"sync"

	"github.com/superlearn/school-central/internal/identity"
	"github.com/superlearn/school-central/internal/payments"
	"github.com/superlearn/school-central/pkg/conf"
	"github.com/superlearn/school-central/pkg/database"
	"github.com/superlearn/school-central/pkg/log"
	"github.com/superlearn/school-central/pkg/server"
)

// AppConfig aggregates every configuration section of the service.
type AppConfig struct {
	Log      log.Conf
	Http     server.Http
	Database database.Database
	Identity identity.Conf
	Payments payments.Conf
}

var (
	cfg  AppConfig
	once sync.Once
)

// NewConf loads the configuration file once and returns it.
func NewConf(confFile string) AppConfig {
	once.Do(func() {
		if err := conf.LoadConfigFile(confFile, &cfg); err != nil {
			panic(fmt.Sprintf("load conf file error: %s", err))
		}
	})
	return cfg
}
