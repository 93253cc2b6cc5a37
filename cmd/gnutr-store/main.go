// Command gnutr-store installs, migrates and queries the GNUtrition store.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"gnutrition/internal/calendar"
	"gnutrition/internal/config"
	"gnutrition/internal/infra/persistence/postgres"
	"gnutrition/internal/infra/persistence/sqlite"
	"gnutrition/internal/loader"
	"gnutrition/internal/logging"
	"gnutrition/internal/measure"
	"gnutrition/internal/metrics"
	"gnutrition/internal/migrate"
	"gnutrition/internal/persistence"
	"gnutrition/internal/refdata"
	"gnutrition/internal/schema"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var exitFunc = os.Exit

func main() {
	exitFunc(run(os.Args[1:], os.Stdout, os.Stderr))
}

// app carries what every subcommand needs once flags are parsed.
type app struct {
	stdout, stderr io.Writer

	configPath  string
	logLevel    string
	logFormat   string
	metricsFile string

	cfg     *config.Config
	log     logging.Logger
	metrics *metrics.Recorder
}

// run executes the command line and returns the process exit status.
func run(args []string, stdout, stderr io.Writer) int {
	a := &app{stdout: stdout, stderr: stderr}
	root := a.rootCommand()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	err := root.ExecuteContext(context.Background())
	if ferr := a.flushMetrics(); ferr != nil && err == nil {
		err = ferr
	}
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "error: %v\n", err)
		if persistence.IsFatal(err) {
			return 2
		}
		return 1
	}
	return 0
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "gnutr-store",
		Short:         "Manage the GNUtrition nutrient and recipe store",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}
	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "config file (default ./gnutr.yaml or <user_dir>/gnutr.yaml)")
	pf.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn or error")
	pf.StringVar(&a.logFormat, "log-format", "", "log format: text or json")
	pf.StringVar(&a.metricsFile, "metrics-file", "", "write Prometheus metrics to this file on exit")

	root.AddCommand(a.installCommand(), a.migrateCommand(), a.measuresCommand(), a.queryCommand(), a.daysSinceCommand())
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if a.logFormat != "" {
		cfg.Log.Format = a.logFormat
	}
	if a.metricsFile != "" {
		cfg.Metrics.File = a.metricsFile
	}
	a.cfg = cfg
	a.log = logging.New(cfg.Log.Level, cfg.Log.Format, cmd.ErrOrStderr())
	a.metrics = metrics.New()
	return nil
}

func (a *app) flushMetrics() error {
	if a.cfg == nil || a.cfg.Metrics.File == "" || a.metrics == nil {
		return nil
	}
	return a.metrics.WriteFile(a.cfg.Metrics.File)
}

func (a *app) session() *sqlite.Session {
	return sqlite.NewSession(a.cfg.DBPath(),
		sqlite.WithLogger(logging.With(a.log, "store", "current")),
		sqlite.WithMetrics(a.metrics.ForStore("current")))
}

func (a *app) installCommand() *cobra.Command {
	var table string
	cmd := &cobra.Command{
		Use:   "install",
		Short: "Rebuild reference tables from the data release and create user tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			src, err := refdata.Open(ctx, a.cfg.RefData())
			if err != nil {
				return fmt.Errorf("reference data: %w", err)
			}
			s := a.session()
			defer func() { _ = s.Close() }()

			l := loader.New(s, src,
				loader.WithPrefix(a.cfg.Data.Prefix),
				loader.WithLogger(a.log),
				loader.WithMetrics(a.metrics))
			inst := schema.NewInstaller(schema.NewManager(s, schema.WithLogger(a.log)), l, a.log)
			var loads []schema.TableLoad
			if table != "" {
				load, err := inst.InstallTable(ctx, table)
				if err != nil {
					return err
				}
				loads = []schema.TableLoad{load}
			} else {
				rep, err := inst.Install(ctx)
				if err != nil {
					return err
				}
				loads = rep.Loads
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "TABLE\tROWS\tSTATUS")
			for _, load := range loads {
				status := "ok"
				if load.Err != nil {
					status = "failed: " + load.Err.Error()
				}
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", load.Table, humanize.Comma(load.Rows), status)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&table, "table", "", "reload only this table")
	return cmd
}

func (a *app) measuresCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "measures FOOD_ID [DESCRIPTION]",
		Short: "List a food's measures, or resolve DESCRIPTION against them",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s := a.session()
			defer func() { _ = s.Close() }()
			r := measure.NewResolver(s, measure.WithLogger(a.log), measure.WithMetrics(a.metrics))
			foodID := migrate.FoodID(args[0])
			out := cmd.OutOrStdout()
			if len(args) == 2 {
				res, err := r.Resolve(ctx, foodID, measure.Description(args[1]))
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(out, "%s\t%s\n", res.Description, res.Tier)
				return err
			}
			candidates, err := r.Candidates(ctx, foodID)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "MEASURE\tGRAMS")
			for _, c := range candidates {
				_, _ = fmt.Fprintf(w, "%s\t%s\n", c.Description, humanize.Ftoa(c.GramWeight))
			}
			return w.Flush()
		},
	}
}

func (a *app) migrateCommand() *cobra.Command {
	var dsn string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Copy recipes, people and plans from an earlier release's store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if dsn == "" {
				dsn = a.cfg.Legacy.DSN
			}
			legacy, err := postgres.Open(ctx, dsn,
				postgres.WithLogger(logging.With(a.log, "store", "legacy")),
				postgres.WithMetrics(a.metrics.ForStore("legacy")))
			if err != nil {
				return err
			}
			defer func() { _ = legacy.Close() }()

			s := a.session()
			defer func() { _ = s.Close() }()
			if err := schema.NewManager(s, schema.WithLogger(a.log)).CreateUserSchema(ctx); err != nil {
				return err
			}
			rep, err := migrate.New(s, migrate.WithLogger(a.log), migrate.WithMetrics(a.metrics)).Migrate(ctx, legacy)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "generation: %s\n", rep.Generation)
			for _, t := range rep.Found {
				_, _ = fmt.Fprintf(out, "%s: %s rows\n", t, humanize.Comma(int64(rep.Rows[t])))
			}
			_, _ = fmt.Fprintf(out, "unresolved measures: %d\nskipped rows: %d\n", rep.Unresolved, rep.Skipped)
			return nil
		},
	}
	cmd.Flags().StringVar(&dsn, "dsn", "", "legacy Postgres DSN (overrides legacy.dsn)")
	return cmd
}

func (a *app) queryCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "query SQL [ARG...]",
		Short: "Run one statement against the current store and print its rows",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := a.session()
			defer func() { _ = s.Close() }()
			params := make([]any, 0, len(args)-1)
			for _, p := range args[1:] {
				params = append(params, p)
			}
			ctx := persistence.WithCaller(cmd.Context(), "query")
			res, err := s.Execute(ctx, args[0], params...)
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), res)
		},
	}
}

func printResult(out io.Writer, res persistence.Result) error {
	if len(res.Columns) == 0 {
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, strings.Join(res.Columns, "\t"))
	for _, row := range res.All() {
		cells := make([]string, len(row))
		for i, v := range row {
			if v == nil {
				cells[i] = "NULL"
				continue
			}
			cells[i] = persistence.AsString(v)
		}
		_, _ = fmt.Fprintln(w, strings.Join(cells, "\t"))
	}
	return w.Flush()
}

func (a *app) daysSinceCommand() *cobra.Command {
	var from int
	cmd := &cobra.Command{
		Use:   "days-since DATE",
		Short: "Print the days from January 1 of --from to DATE (YYYY-MM-DD)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := calendar.DaysSince(from, args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), n)
			return err
		},
	}
	cmd.Flags().IntVar(&from, "from", calendar.Epoch, "start year")
	return cmd
}
