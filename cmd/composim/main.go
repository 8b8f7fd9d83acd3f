package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/san-kum/composim/internal/config"
	"github.com/san-kum/composim/internal/engine"
	"github.com/san-kum/composim/internal/experiment"
	"github.com/san-kum/composim/internal/export"
	"github.com/san-kum/composim/internal/storage"
	"github.com/san-kum/composim/internal/tui"
)

var (
	dataDir      string
	logLevel     string
	preset       string
	totalTime    float64
	precision    int
	parallel     bool
	workers      int
	skipFailures bool
	emitInitial  bool
	format       string
	watch        bool
	save         bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "composim",
		Short:         "compositional multi-rate simulation runner",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".composim", "data directory for saved runs")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	runCmd := &cobra.Command{
		Use:   "run [config]",
		Short: "run a composite from a config file or preset",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runComposite,
	}
	runCmd.Flags().StringVar(&preset, "preset", "", "use a preset composite")
	runCmd.Flags().Float64Var(&totalTime, "time", config.DefaultTotalTime, "total simulated time")
	runCmd.Flags().IntVar(&precision, "precision", config.DefaultPrecision, "decimal digits for time comparison")
	runCmd.Flags().BoolVar(&parallel, "parallel", false, "invoke due processes concurrently")
	runCmd.Flags().IntVar(&workers, "workers", 0, "parallel worker limit (0 = unbounded)")
	runCmd.Flags().BoolVar(&skipFailures, "skip-failures", false, "continue past failing updates")
	runCmd.Flags().BoolVar(&emitInitial, "emit-initial", false, "record the initial state at t=0")
	runCmd.Flags().StringVar(&format, "format", string(export.FormatTable), "output format ("+formatList()+")")
	runCmd.Flags().BoolVar(&watch, "watch", false, "show a live view while running")
	runCmd.Flags().BoolVar(&save, "save", false, "archive the run under the data directory")

	validateCmd := &cobra.Command{
		Use:   "validate [config]",
		Short: "check a config builds into a composite",
		Args:  cobra.ExactArgs(1),
		RunE:  validateConfig,
	}

	schemaCmd := &cobra.Command{
		Use:   "schema [config]",
		Short: "print the merged store schema of a composite",
		Args:  cobra.MaximumNArgs(1),
		RunE:  printSchema,
	}
	schemaCmd.Flags().StringVar(&preset, "preset", "", "use a preset composite")

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list preset composites",
		Run: func(cmd *cobra.Command, args []string) {
			for _, p := range config.ListPresets() {
				fmt.Println(p)
			}
		},
	}

	typesCmd := &cobra.Command{
		Use:   "types",
		Short: "list registered process types",
		Run: func(cmd *cobra.Command, args []string) {
			for _, t := range experiment.NewRegistry().ListTypes() {
				fmt.Println(t)
			}
		},
	}

	dumpCmd := &cobra.Command{
		Use:   "dump [preset]",
		Short: "print a preset as a config file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.GetPreset(args[0])
			if cfg == nil {
				return fmt.Errorf("unknown preset: %s (available: %v)", args[0], config.ListPresets())
			}
			out, err := config.Marshal(cfg)
			if err != nil {
				return err
			}
			_, err = os.Stdout.Write(out)
			return err
		},
	}

	runsCmd := &cobra.Command{
		Use:   "runs",
		Short: "list saved runs",
		RunE:  listRuns,
	}

	showCmd := &cobra.Command{
		Use:   "show [run_id]",
		Short: "print a saved run",
		Args:  cobra.ExactArgs(1),
		RunE:  showRun,
	}
	showCmd.Flags().StringVar(&format, "format", string(export.FormatTable), "output format ("+formatList()+")")

	rootCmd.AddCommand(runCmd, validateCmd, schemaCmd, presetsCmd, typesCmd, dumpCmd, runsCmd, showCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func formatList() string {
	names := make([]string, 0, len(export.Formats()))
	for _, f := range export.Formats() {
		names = append(names, string(f))
	}
	return strings.Join(names, ", ")
}

func newLogger() (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		return nil, fmt.Errorf("invalid log level %q", logLevel)
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})), nil
}

// loadComposite resolves the composite from a preset or a config file. A
// preset wins when both are given.
func loadComposite(args []string) (*config.Composite, error) {
	if preset != "" {
		cfg := config.GetPreset(preset)
		if cfg == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets())
		}
		return cfg, nil
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("need a config file or --preset")
	}
	cfg, err := config.Load(args[0])
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func runComposite(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	cfg, err := loadComposite(args)
	if err != nil {
		return err
	}
	out, err := export.ParseFormat(format)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("time") {
		cfg.TotalTime = totalTime
	}
	if flags.Changed("precision") {
		cfg.Precision = precision
	}
	if flags.Changed("parallel") {
		cfg.Parallel = parallel
	}
	if flags.Changed("workers") {
		cfg.Workers = workers
	}
	if flags.Changed("skip-failures") {
		cfg.SkipFailures = skipFailures
	}
	if flags.Changed("emit-initial") {
		cfg.EmitInitial = emitInitial
	}

	exp := experiment.New(cfg, experiment.NewRegistry(), experiment.WithLogger(logger))
	if err := exp.Setup(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var res *experiment.Result
	var runErr error
	if watch {
		runErr = tui.Watch(ctx, exp.Engine(), cfg.Name, cfg.TotalTime)
		res = exp.Result()
	} else {
		res, runErr = exp.Run(ctx)
	}
	if res == nil {
		return runErr
	}

	run := export.Run{
		Name:      res.Name,
		TotalTime: cfg.TotalTime,
		Status:    res.Status.String(),
		Metrics:   res.Metrics,
	}
	if err := export.Write(os.Stdout, out, run, res.Timeseries); err != nil {
		return err
	}

	if save && res.Status != engine.Pending {
		st := storage.New(dataDir)
		if err := st.Init(); err != nil {
			return err
		}
		id, err := st.Save(storage.RunMetadata{
			Name:      res.Name,
			TotalTime: cfg.TotalTime,
			Status:    res.Status.String(),
			Elapsed:   res.Elapsed,
			Metrics:   res.Metrics,
		}, res.Timeseries)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "run id: %s\n", id)
	}
	return runErr
}

func validateConfig(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(args[0])
	if err != nil {
		return err
	}
	if err := experiment.New(cfg, nil).Setup(); err != nil {
		return err
	}
	fmt.Printf("%s: ok (%d processes)\n", cfg.Name, len(cfg.Processes))
	return nil
}

func printSchema(cmd *cobra.Command, args []string) error {
	cfg, err := loadComposite(args)
	if err != nil {
		return err
	}
	exp := experiment.New(cfg, nil)
	if err := exp.Setup(); err != nil {
		return err
	}
	c := exp.Composite()
	writers := c.Writers()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PATH\tUPDATER\tEMIT\tINITIAL\tSHARED BY")
	for _, l := range c.Leaves() {
		key := l.Path.String()
		fmt.Fprintf(w, "%s\t%s\t%v\t%s\t%s\n",
			key,
			l.Leaf.Updater,
			l.Leaf.Emit,
			export.FormatValue(l.Leaf.Value),
			strings.Join(writers[key], ","),
		)
	}
	return w.Flush()
}

func listRuns(cmd *cobra.Command, args []string) error {
	runs, err := storage.New(dataDir).List()
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSTATUS\tTOTAL\tRECORDS\tELAPSED\tTIMESTAMP")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%g\t%d\t%v\t%s\n",
			r.ID,
			r.Name,
			r.Status,
			r.TotalTime,
			r.Records,
			r.Elapsed,
			r.Timestamp.Format("2006-01-02 15:04:05"),
		)
	}
	return w.Flush()
}

func showRun(cmd *cobra.Command, args []string) error {
	out, err := export.ParseFormat(format)
	if err != nil {
		return err
	}
	st := storage.New(dataDir)
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}
	ts, err := st.LoadTimeseries(args[0])
	if err != nil {
		return err
	}
	return export.Write(os.Stdout, out, export.Run{
		Name:      meta.Name,
		TotalTime: meta.TotalTime,
		Status:    meta.Status,
		Metrics:   meta.Metrics,
	}, ts)
}
