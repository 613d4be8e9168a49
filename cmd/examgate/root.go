package main

import (
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/dmitrymomot/examgate/pkg/config"
	"github.com/dmitrymomot/examgate/pkg/environment"
	"github.com/dmitrymomot/examgate/pkg/identity"
	"github.com/dmitrymomot/examgate/pkg/logger"
	"github.com/dmitrymomot/examgate/pkg/requestid"
)

// cli holds state shared by every subcommand. It is filled in the root
// PersistentPreRunE before any RunE executes.
type cli struct {
	envFiles []string
	cfg      appConfig
	log      *slog.Logger
	started  time.Time
	admin    string
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:           "examgate",
		Short:         "Entitlement and subscription engine for exam-prep content",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.init(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			c.log.DebugContext(cmd.Context(), "command end",
				slog.String("command", cmd.CommandPath()),
				logger.Duration(time.Since(c.started)),
			)
		},
	}
	root.PersistentFlags().StringSliceVar(&c.envFiles, "env-file", nil, "dotenv files to load before reading the environment")

	root.AddCommand(
		newServeCmd(c),
		newMigrateCmd(c),
		newRefundsCmd(c),
		newTokenCmd(c),
	)
	return root
}

func (c *cli) init(cmd *cobra.Command) error {
	if err := config.LoadEnv(c.envFiles...); err != nil {
		return err
	}
	if err := config.Load(&c.cfg); err != nil {
		return err
	}
	var logCfg logger.Config
	if err := config.Load(&logCfg); err != nil {
		return err
	}

	env := environment.Parse(c.cfg.Env)
	c.log = logger.New(
		logger.WithEnvironment(env, c.cfg.ServiceName),
		logger.WithConfig(logCfg),
		logger.WithContextExtractors(requestid.LoggerExtractor(), identity.LoggerExtractor()),
	)
	logger.SetAsDefault(c.log)

	ctx := environment.WithContext(cmd.Context(), env)
	ctx = requestid.WithContext(ctx, uuid.NewString())
	cmd.SetContext(ctx)

	c.started = time.Now()
	c.log.DebugContext(ctx, "command start", slog.String("command", cmd.CommandPath()))
	return nil
}

var errNoOperator = errors.New("no administrator id: pass --as or set ADMIN_USER_IDS")

// operator returns the administrator id used by operator commands.
func (c *cli) operator() (string, error) {
	if c.admin != "" {
		return c.admin, nil
	}
	if len(c.cfg.AdminUserIDs) > 0 {
		return c.cfg.AdminUserIDs[0], nil
	}
	return "", errNoOperator
}
