package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/NotCoffee418/panel_bridge/pkg/bridge"
	"github.com/NotCoffee418/panel_bridge/pkg/extractor"
	"github.com/NotCoffee418/panel_bridge/pkg/logger"
	"github.com/NotCoffee418/panel_bridge/pkg/pathing"
	"github.com/NotCoffee418/panel_bridge/pkg/port_link"
	"github.com/NotCoffee418/panel_bridge/pkg/scheduler"
	"github.com/NotCoffee418/panel_bridge/pkg/types"
	"github.com/spf13/cobra"
)

const requester = "bridgectl"

type cli struct {
	paths    bridge.Paths
	log      logger.Logger
	linkOpts []port_link.LinkOption
}

func buildCLI(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:          "bridgectl",
		Short:        "Operate a building panel over its serial console",
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&c.paths.Config, "config", pathing.GetBridgeConfigPath(), "bridge config file")
	root.PersistentFlags().StringVar(&c.paths.Catalog, "catalog", pathing.GetActionCatalogPath(), "action catalog file")
	root.PersistentFlags().StringVar(&c.paths.Database, "db", pathing.GetJobDbPath(), "job database file")

	root.AddCommand(
		c.buildHomeCommand(),
		c.buildExecCommand(),
		c.buildRunCommand(),
		c.buildReadGroupCommand(),
		c.buildCommandCommand(),
		c.buildJobsCommand(),
		buildTestRegexCommand(),
	)
	return root
}

func (c *cli) open(ctx context.Context) (*bridge.Bridge, error) {
	for _, path := range []string{c.paths.Config, c.paths.Catalog, c.paths.Database} {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, err
		}
	}
	return bridge.Open(ctx, c.paths, c.log, c.linkOpts...)
}

func (c *cli) buildHomeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "home",
		Short: "Return the panel to its main menu and print the screen",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			b, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer b.Close()

			screen, err := b.Navigator.ReachHome(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), screen)
			return nil
		},
	}
}

func (c *cli) buildExecCommand() *cobra.Command {
	var sequence, pattern string
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "exec",
		Short: "Send a raw input sequence and print the resulting screen",
		Long: `Send a raw input sequence and print the resulting screen.
Escapes such as \r and \x1b in --sequence are decoded before sending.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if sequence == "" {
				return errors.New("--sequence is required")
			}
			b, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer b.Close()

			if timeout <= 0 {
				timeout = b.Config.Jobs.DefaultTimeout()
			}
			capture, err := b.Navigator.ExecuteSequence(cmd.Context(), extractor.NormalizePattern(sequence), timeout)
			if capture != nil {
				fmt.Fprintln(cmd.OutOrStdout(), capture.Screen)
			}
			if err != nil {
				return err
			}
			if pattern == "" {
				return nil
			}

			result, err := extractor.Extract(capture.Screen, pattern)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "result: %s\n", result)
			return nil
		},
	}

	cmd.Flags().StringVar(&sequence, "sequence", "", "input sequence to send")
	cmd.Flags().StringVar(&pattern, "regex", "", "pattern to extract a result with")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "overall wait budget (default from config)")
	return cmd
}

func (c *cli) buildRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run SLUG",
		Short: "Run a catalog action as a recorded job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runJob(cmd, func(ctx context.Context, b *bridge.Bridge) (types.NewJob, error) {
				action, err := b.Store.GetActionBySlug(ctx, args[0])
				if err != nil {
					return types.NewJob{}, fmt.Errorf("action %q: %w", args[0], err)
				}
				return types.NewJob{Kind: types.JobAction, ActionID: &action.ID}, nil
			})
		},
	}
}

func (c *cli) buildReadGroupCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "read-group GROUP",
		Short: "Read a group summary and refresh cached point values",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			group, err := positiveArg("group", args[0])
			if err != nil {
				return err
			}
			return c.runJob(cmd, func(context.Context, *bridge.Bridge) (types.NewJob, error) {
				return types.NewJob{Kind: types.JobReadGroup, Payload: types.JobPayload{GroupNumber: group}}, nil
			})
		},
	}
}

func (c *cli) buildCommandCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "command GROUP POINT TYPE VALUE",
		Short: "Send a command to a point",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			group, err := positiveArg("group", args[0])
			if err != nil {
				return err
			}
			point, err := positiveArg("point", args[1])
			if err != nil {
				return err
			}
			return c.runJob(cmd, func(context.Context, *bridge.Bridge) (types.NewJob, error) {
				return types.NewJob{Kind: types.JobCommandPoint, Payload: types.JobPayload{
					GroupNumber:  group,
					PointNumber:  point,
					CommandType:  args[2],
					CommandValue: args[3],
				}}, nil
			})
		},
	}
}

// runJob submits one job to a private worker and prints the finished record.
func (c *cli) runJob(cmd *cobra.Command, build func(context.Context, *bridge.Bridge) (types.NewJob, error)) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	b, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer b.Close()

	req, err := build(ctx, b)
	if err != nil {
		return err
	}
	req.RequestedBy = requester

	sched := scheduler.NewScheduler(b.Store, b.Navigator, b.Config.Jobs, scheduler.WithLogger(c.log))
	sub := sched.Subscribe(16)
	defer sub.Close()

	workerDone := make(chan error, 1)
	go func() {
		workerDone <- sched.Run(ctx)
	}()

	job, err := sched.Submit(ctx, req)
	if err != nil {
		return err
	}

	for !job.Status.IsTerminal() {
		select {
		case update := <-sub.C():
			if update.ID == job.ID {
				job = &update
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	cancel()
	<-workerDone

	if err := writeJob(cmd.OutOrStdout(), job); err != nil {
		return err
	}
	if job.Status != types.JobSucceeded {
		return fmt.Errorf("job %s %s: %s", job.ID, job.Status, job.ErrorMessage)
	}
	return nil
}

func writeJob(w io.Writer, job *types.Job) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "id\t%s\n", job.ID)
	fmt.Fprintf(tw, "kind\t%s\n", job.Kind)
	fmt.Fprintf(tw, "status\t%s\n", job.Status)
	if job.ParsedResult != "" {
		fmt.Fprintf(tw, "result\t%s\n", job.ParsedResult)
	}
	if job.ErrorMessage != "" {
		fmt.Fprintf(tw, "error\t%s\n", job.ErrorMessage)
	}
	if len(job.Result) > 0 {
		fmt.Fprintf(tw, "detail\t%s\n", job.Result)
	}
	return tw.Flush()
}

func (c *cli) buildJobsCommand() *cobra.Command {
	var status, kind string
	var limit int

	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List recent jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter := types.JobFilter{Status: types.JobStatus(status), Kind: types.JobKind(kind), Limit: limit}
			if status != "" && !filter.Status.IsValid() {
				return fmt.Errorf("unknown status %q", status)
			}

			b, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer b.Close()

			jobs, err := b.Store.ListJobs(cmd.Context(), filter)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tKIND\tSTATUS\tCREATED\tRESULT")
			for _, job := range jobs {
				result := job.ParsedResult
				if job.ErrorMessage != "" {
					result = job.ErrorMessage
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
					job.ID, job.Kind, job.Status, job.CreatedAt.Local().Format(time.DateTime), result)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "only jobs with this status")
	cmd.Flags().StringVar(&kind, "kind", "", "only jobs of this kind")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of jobs")
	return cmd
}

func buildTestRegexCommand() *cobra.Command {
	var sample, pattern string

	cmd := &cobra.Command{
		Use:   "test-regex",
		Short: "Try a result pattern against sample screen text",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := extractor.TryPattern(extractor.NormalizePattern(sample), pattern)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}

	cmd.Flags().StringVar(&sample, "sample", "", "sample screen text (escapes decoded)")
	cmd.Flags().StringVar(&pattern, "regex", "", "pattern to test")
	cmd.MarkFlagRequired("regex")
	return cmd
}

func positiveArg(name, value string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%s must be a positive number, got %q", name, value)
	}
	return n, nil
}
