package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/okian/evalboard/internal/adapters/blobstore"
	service "github.com/okian/evalboard/internal/app"
	"github.com/okian/evalboard/internal/config"
	"github.com/okian/evalboard/pkg/logger"
)

// cli carries state shared by subcommands.
type cli struct {
	configPath string
	logLevel   string

	cfg *config.Config
	log logger.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "evalctl",
		Short:         "Score prediction files and manage the evalboard history",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.setup(cmd.Context())
		},
	}
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "YAML config file (overrides "+config.EnvConfigFile+")")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "warn", "Log level: debug, info, warn, error")

	root.AddCommand(
		newScoreCmd(c),
		newSubmitCmd(c),
		newLeaderboardCmd(c),
		newHistoryCmd(c),
		newSeedCmd(c),
	)
	return root
}

func (c *cli) setup(ctx context.Context) error {
	if err := logger.InitWithWriter(os.Stderr, "text"); err != nil {
		return err
	}
	if err := logger.SetLevelString(c.logLevel); err != nil {
		return err
	}
	c.log = logger.Get().Named("evalctl")

	if c.configPath != "" {
		if err := os.Setenv(config.EnvConfigFile, c.configPath); err != nil {
			return err
		}
	}
	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}
	c.cfg = cfg
	return nil
}

// openService starts a service over the configured store. The caller must
// Stop it.
func (c *cli) openService(ctx context.Context) (*service.Service, error) {
	store, err := blobstore.Open(ctx, c.cfg.BlobSettings(), c.log.Named("blobstore"))
	if err != nil {
		return nil, err
	}
	svc := service.New(store, service.ConfigOptions(c.cfg, c.log.Named("service"))...)
	if err := svc.Start(ctx); err != nil {
		_ = blobstore.Close(store)
		return nil, fmt.Errorf("start service: %w", err)
	}
	return svc, nil
}
