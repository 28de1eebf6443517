package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/Neural-Bridge/sql-analyst/internal/config"
	"github.com/Neural-Bridge/sql-analyst/internal/di"
	"github.com/Neural-Bridge/sql-analyst/internal/infrastructure/env"
	"github.com/Neural-Bridge/sql-analyst/internal/infrastructure/userinteraction"
	"github.com/Neural-Bridge/sql-analyst/internal/usecase/executor"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var envFile string
	root := &cobra.Command{
		Use:          "sql-analyst",
		Short:        "Answer questions about a SQL database in natural language",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", "", "read configuration from this dotenv file instead of the environment")
	load := func() (*config.Config, error) { return loadConfig(envFile) }
	root.AddCommand(newAskCmd(load), newToolsCmd(load))
	return root
}

type configLoader func() (*config.Config, error)

func newAskCmd(load configLoader) *cobra.Command {
	var (
		chart    bool
		maxSteps int
	)
	cmd := &cobra.Command{
		Use:     "ask [query]",
		Short:   "Run the agent on one question",
		Example: fmt.Sprintf("  sql-analyst ask '%s'", executor.ExampleQuery),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.TrimSpace(strings.Join(args, " "))
			if query == "" {
				var err error
				if query, err = readQuery(cmd.InOrStdin(), cmd.OutOrStdout()); err != nil {
					return err
				}
			}

			cfg, err := load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("chart") {
				cfg.Agent.EnableChart = chart
			}
			if cmd.Flags().Changed("max-steps") {
				cfg.Agent.MaxSteps = maxSteps
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			container, err := di.NewContainer(ctx, cfg, di.Options{LogName: query})
			if err != nil {
				return err
			}
			defer container.Close()

			console := userinteraction.NewConsole(cmd.OutOrStdout(), cfg.ChartDir, container.Logger)
			result, err := container.Runner(console).Run(ctx, query)
			if err != nil {
				container.Logger.Error("run failed", "run_id", result.RunID, "error", err)
				return fmt.Errorf("%s", result.FailureMessage())
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&chart, "chart", true, "enable the visualize_data tool")
	cmd.Flags().IntVar(&maxSteps, "max-steps", executor.DefaultMaxSteps, "maximum number of planner calls")
	return cmd
}

func newToolsCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List the tools offered to the planner",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			container, err := di.NewContainer(cmd.Context(), cfg, di.Options{LogName: "tools"})
			if err != nil {
				return err
			}
			defer container.Close()

			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.SetHeader([]string{"Tool", "Description"})
			table.SetAutoWrapText(true)
			for _, spec := range container.Tools.ListTools() {
				table.Append([]string{spec.Name.String(), spec.Description})
			}
			table.Render()
			return nil
		},
	}
}

func loadConfig(envFile string) (*config.Config, error) {
	if envFile == "" {
		return config.Load(env.NewEnvService())
	}
	vars, err := env.NewEnvFile(envFile)
	if err != nil {
		return nil, err
	}
	return config.Load(vars)
}

func readQuery(in io.Reader, out io.Writer) (string, error) {
	fmt.Fprintln(out, "Enter a question about the database:")
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read query: %w", err)
	}
	query := strings.TrimSpace(line)
	if query == "" {
		return "", errors.New("query cannot be empty")
	}
	return query, nil
}
