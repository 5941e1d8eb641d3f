package server

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/superlearn/school-central/pkg/log"
)

// Http holds the HTTP server configuration.
type Http struct {
	Host            string
	Port            int
	ExposeMetrics   bool `mapstructure:"exposeMetrics"`
	AccessLog       bool `mapstructure:"accessLog"`
	ReadTimeout     int  `mapstructure:"readTimeout"`
	WriteTimeout    int  `mapstructure:"writeTimeout"`
	IdleTimeout     int  `mapstructure:"idleTimeout"`
	ShutdownTimeout int  `mapstructure:"shutdownTimeout"`
	Auth            Auth
}

// Auth holds endpoint authentication settings.
type Auth struct {
	SecretKey    string        `mapstructure:"secretKey"`
	AccessExpire time.Duration `mapstructure:"accessExpire"`
}

// FiberConfig returns the fiber app configuration derived from Http.
func (h *Http) FiberConfig() fiber.Config {
	return fiber.Config{
		ReadTimeout:           time.Duration(h.ReadTimeout) * time.Second,
		WriteTimeout:          time.Duration(h.WriteTimeout) * time.Second,
		IdleTimeout:           time.Duration(h.IdleTimeout) * time.Second,
		DisableStartupMessage: true,
	}
}

// Serve starts the fiber app and returns a blocking cleanup function that
// waits for a termination signal, then shuts down gracefully.
func (h *Http) Serve(app *fiber.App) func() {
	addr := fmt.Sprintf("%s:%d", h.Host, h.Port)

	go func() {
		log.Infof("http server start at: %s", addr)
		if err := app.Listen(addr); err != nil {
			panic(err)
		}
	}()

	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	return func() {
		<-sc
		log.Info("server is shutting down...")

		timeout := time.Duration(h.ShutdownTimeout) * time.Second
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		if err := app.ShutdownWithTimeout(timeout); err != nil {
			log.Errorf("server shutdown error: %v", err)
		}
		log.Info("http exit")
	}
}
