package main

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/askiada/gemstone-pipeline/internal/regress"
	"github.com/askiada/gemstone-pipeline/internal/workflow"
	"github.com/askiada/gemstone-pipeline/pkg/pipeline/drawer"
)

func (c *cli) trainCmd() *cobra.Command {
	var graphFile string

	cmd := &cobra.Command{
		Use:   "train",
		Short: "Run the training workflow once",
		Long: `Run ingestion, transformation, training, evaluation and the optional remote
push in order. The leaderboard of every candidate is printed on success.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.newApp(cmd)
			if err != nil {
				return err
			}
			defer closeApp(a, c.logger)

			res, runErr := a.Workflow.Run(cmd.Context())
			if graphFile != "" {
				if err := writeGraph(graphFile, a.Workflow); err != nil {
					c.logger.Error("unable to write workflow graph", zap.Error(err))
				}
			}
			if runErr != nil {
				return runErr
			}

			out := cmd.OutOrStdout()
			if err := regress.Report(out, res.Model.Board); err != nil {
				return err
			}
			fmt.Fprintf(out, "\nrun %s selected %s: rmse=%.4f mae=%.4f r2=%.4f\n",
				res.RunID, res.Model.Name, res.Metrics.RMSE, res.Metrics.MAE, res.Metrics.R2)
			for _, object := range res.Pushed {
				fmt.Fprintf(out, "pushed %s\n", object)
			}

			return nil
		},
	}
	cmd.Flags().StringVar(&graphFile, "graph", "", "write the DOT graph of the run to this file")

	return cmd
}

func (c *cli) stepCmd() *cobra.Command {
	var runID string

	cmd := &cobra.Command{
		Use:       "step <name>",
		Short:     "Run a single workflow step",
		Long:      "Run one step of an existing run. Its inputs are read from the run context written by earlier steps.",
		Args:      cobra.ExactArgs(1),
		ValidArgs: workflow.Steps,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.newApp(cmd)
			if err != nil {
				return err
			}
			defer closeApp(a, c.logger)

			err = a.Workflow.RunStep(cmd.Context(), runID, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", args[0], a.Workflow.Status(args[0]))

			return nil
		},
	}
	cmd.Flags().StringVar(&runID, "run-id", "", "identifier of the run the step belongs to")
	_ = cmd.MarkFlagRequired("run-id")

	return cmd
}

func (c *cli) scheduleCmd() *cobra.Command {
	var once bool

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run the training workflow on the configured cron schedule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.newApp(cmd)
			if err != nil {
				return err
			}
			defer closeApp(a, c.logger)

			s, err := a.Scheduler()
			if err != nil {
				return err
			}
			if once {
				return s.RunOnce(cmd.Context())
			}

			s.Start(cmd.Context())
			<-cmd.Context().Done()
			c.logger.Info("waiting for the running workflow to stop")
			<-s.Stop().Done()

			return nil
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "run immediately with retries instead of waiting for the schedule")

	return cmd
}

func (c *cli) graphCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Print the workflow DAG in DOT format",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.newApp(cmd)
			if err != nil {
				return err
			}
			defer closeApp(a, c.logger)

			if output != "" {
				return writeGraph(output, a.Workflow)
			}

			return a.Workflow.Draw(drawer.NewDOTDrawer(cmd.OutOrStdout()))
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to this file instead of stdout")

	return cmd
}

func writeGraph(path string, wf *workflow.Workflow) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "unable to create graph file")
	}
	defer f.Close()

	return wf.Draw(drawer.NewDOTDrawer(f))
}
