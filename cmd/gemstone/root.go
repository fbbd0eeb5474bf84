package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/askiada/gemstone-pipeline/internal/app"
	"github.com/askiada/gemstone-pipeline/internal/config"
	"github.com/askiada/gemstone-pipeline/internal/logging"
)

// cli holds the state shared by every command of one invocation.
type cli struct {
	v       *viper.Viper
	cfgFile string
	cfg     config.Config
	logger  *zap.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{v: viper.New(), logger: zap.NewNop()}

	root := &cobra.Command{
		Use:   "gemstone",
		Short: "Gemstone price regression pipeline",
		Long: `gemstone ingests the gemstone dataset, fits the preprocessing and a set of
regression candidates, keeps the best one and serves price predictions.`,
		SilenceUsage:      true,
		PersistentPreRunE: c.init,
		PersistentPostRun: func(*cobra.Command, []string) {
			_ = c.logger.Sync()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&c.cfgFile, "config", "", "config file (default: ./gemstone.yaml or $HOME/.config/gemstone/gemstone.yaml)")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "console", "log format (console, json)")
	flags.String("artifacts", "artifacts", "artifacts directory")
	_ = c.v.BindPFlag("logging.level", flags.Lookup("log-level"))
	_ = c.v.BindPFlag("logging.format", flags.Lookup("log-format"))
	_ = c.v.BindPFlag("artifacts.root", flags.Lookup("artifacts"))

	root.AddCommand(
		c.trainCmd(),
		c.stepCmd(),
		c.scheduleCmd(),
		c.predictCmd(),
		c.serveCmd(),
		c.graphCmd(),
		c.runsCmd(),
		versionCmd(),
	)

	return root
}

func (c *cli) init(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(c.v, c.cfgFile)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return errors.Wrap(err, "failed to setup logging")
	}

	c.cfg = cfg
	c.logger = logger
	c.logger.Debug("configuration loaded", zap.String("file", c.v.ConfigFileUsed()), zap.String("command", cmd.Name()))

	return nil
}

// newApp builds the components. The caller closes it.
func (c *cli) newApp(cmd *cobra.Command) (*app.App, error) {
	return app.New(cmd.Context(), c.cfg, c.logger)
}

func closeApp(a *app.App, logger *zap.Logger) {
	if err := a.Close(); err != nil {
		logger.Error("unable to close tracker", zap.Error(err))
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "gemstone %s\n", version)
		},
	}
}
