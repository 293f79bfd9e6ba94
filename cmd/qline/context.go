package main

import (
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"qline/internal/api"
	"qline/internal/certify"
	"qline/internal/config"
	"qline/internal/diagnosis"
	"qline/internal/jobs"
	"qline/internal/lifecycle"
	"qline/internal/logging"
	"qline/internal/notifications"
)

type commandContext struct {
	configFlag *string
	actorFlag  *string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	serviceOnce sync.Once
	store       *jobs.Store
	service     *api.JobService
	notifier    notifications.Service
	serviceErr  error
}

func newCommandContext(configFlag, actorFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag, actorFlag: actorFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// actor resolves the acting operator: --actor flag first, then $QLINE_ACTOR,
// then the OS user.
func (c *commandContext) actor() string {
	if c.actorFlag != nil {
		if trimmed := strings.TrimSpace(*c.actorFlag); trimmed != "" {
			return trimmed
		}
	}
	if env := strings.TrimSpace(os.Getenv("QLINE_ACTOR")); env != "" {
		return env
	}
	if user := strings.TrimSpace(os.Getenv("USER")); user != "" {
		return user
	}
	return "operator"
}

// ensureService opens the store and builds the shared service layer. The CLI
// logs at warn level to keep command output clean.
func (c *commandContext) ensureService() (*api.JobService, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	c.serviceOnce.Do(func() {
		logger, logErr := logging.New(logging.Options{Level: "warn", Format: "console", OutputPaths: []string{"stderr"}})
		if logErr != nil {
			logger = slog.Default()
		}
		store, openErr := jobs.Open(cfg)
		if openErr != nil {
			c.serviceErr = openErr
			return
		}
		c.store = store
		c.notifier = notifications.NewService(cfg)
		tracker := diagnosis.NewTracker(store, c.notifier, logger)
		engine := lifecycle.NewEngine(store, tracker, c.notifier, logger)
		issuer := certify.NewIssuer(store, c.notifier, logger)
		c.service = api.NewJobService(store, engine, tracker, issuer)
	})
	return c.service, c.serviceErr
}

func (c *commandContext) withService(fn func(*api.JobService) error) error {
	svc, err := c.ensureService()
	if err != nil {
		return err
	}
	return fn(svc)
}

func (c *commandContext) close() {
	if c.store != nil {
		_ = c.store.Close()
	}
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for current := cmd; current != nil; current = current.Parent() {
		if current.Annotations != nil && current.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
