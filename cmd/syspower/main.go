package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/dustin/go-humanize"

	"github.com/rjboer/GoSyspower/internal/config"
	"github.com/rjboer/GoSyspower/internal/flagging"
	"github.com/rjboer/GoSyspower/internal/logging"
	"github.com/rjboer/GoSyspower/internal/synth"
	"github.com/rjboer/GoSyspower/internal/syspower"
	"github.com/rjboer/GoSyspower/internal/table"
	"github.com/rjboer/GoSyspower/internal/telemetry"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.LookupEnv, os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		log.Fatalf("syspower: %v", err)
	}
}

type cliConfig struct {
	config.Config
	configPath string
	saveConfig string
	synthesize bool
}

func parseConfig(args []string, lookup func(string) (string, bool), defaults config.Config) (cliConfig, error) {
	cfg := cliConfig{Config: defaults}
	c := &cfg.Config
	fs := flag.NewFlagSet("syspower", flag.ContinueOnError)
	fs.StringVar(&cfg.configPath, "config", envString(lookup, "SYSPOWER_CONFIG", ""), "YAML configuration file")
	fs.StringVar(&cfg.saveConfig, "save-config", "", "Write the effective configuration to this file")
	fs.BoolVar(&cfg.synthesize, "synthesize", envBool(lookup, "SYSPOWER_SYNTHESIZE", false), "Write a synthetic observation into the store first")
	fs.StringVar(&c.Store.Backend, "store-backend", envString(lookup, "SYSPOWER_STORE_BACKEND", c.Store.Backend), "Table store backend (sqlite|memory)")
	fs.StringVar(&c.Store.Path, "store", envString(lookup, "SYSPOWER_STORE", c.Store.Path), "SQLite table store path")
	fs.StringVar(&c.Tables.SysPower, "syspower-table", envString(lookup, "SYSPOWER_SYSPOWER_TABLE", c.Tables.SysPower), "Switched power table")
	fs.StringVar(&c.Tables.Antenna, "antenna-table", envString(lookup, "SYSPOWER_ANTENNA_TABLE", c.Tables.Antenna), "Antenna table")
	fs.StringVar(&c.Tables.Gain, "gain-table", envString(lookup, "SYSPOWER_GAIN_TABLE", c.Tables.Gain), "Requantizer gain table to correct")
	fs.StringVar(&c.Tables.Template, "template-table", envString(lookup, "SYSPOWER_TEMPLATE_TABLE", c.Tables.Template), "Diagnostic template table (default <gain>.template)")
	fs.StringVar(&c.FluxTimeRange, "flux-timerange", envString(lookup, "SYSPOWER_FLUX_TIMERANGE", c.FluxTimeRange), "Flux calibrator time range start~end")
	fs.StringVar(&c.OnlineFlags, "online-flags", envString(lookup, "SYSPOWER_ONLINE_FLAGS", c.OnlineFlags), "File of online flag commands")
	fs.Float64Var(&c.Correction.ClipLow, "clip-low", envFloat(lookup, "SYSPOWER_CLIP_LOW", c.Correction.ClipLow), "Lowest accepted template value")
	fs.Float64Var(&c.Correction.ClipHigh, "clip-high", envFloat(lookup, "SYSPOWER_CLIP_HIGH", c.Correction.ClipHigh), "Highest accepted template value")
	fs.IntVar(&c.Correction.BasebandSize, "baseband-size", envInt(lookup, "SYSPOWER_BASEBAND_SIZE", c.Correction.BasebandSize), "Spectral windows per baseband")
	fs.StringVar(&c.Logging.Level, "log-level", envString(lookup, "SYSPOWER_LOG_LEVEL", c.Logging.Level), "Log level (debug|info|warn|error)")
	fs.StringVar(&c.Logging.Format, "log-format", envString(lookup, "SYSPOWER_LOG_FORMAT", c.Logging.Format), "Log format (text|json)")
	fs.StringVar(&c.Telemetry.MetricsTextfile, "metrics-textfile", envString(lookup, "SYSPOWER_METRICS_TEXTFILE", c.Telemetry.MetricsTextfile), "Write Prometheus metrics to this file after the run")
	fs.StringVar(&c.Telemetry.WebAddr, "web-addr", envString(lookup, "SYSPOWER_WEB_ADDR", c.Telemetry.WebAddr), "Serve templates and metrics on this address after the run (e.g. :8080)")
	fs.IntVar(&c.Telemetry.HistoryLimit, "history-limit", envInt(lookup, "SYSPOWER_HISTORY_LIMIT", c.Telemetry.HistoryLimit), "Template reports kept for the web interface")

	if err := fs.Parse(args); err != nil {
		return cliConfig{}, err
	}
	return cfg, nil
}

// configPath finds -config before the full flag set is built, so the file
// can supply the flag defaults.
func configPath(args []string, lookup func(string) (string, bool)) string {
	for i, a := range args {
		name, value, hasValue := strings.Cut(strings.TrimLeft(a, "-"), "=")
		if !strings.HasPrefix(a, "-") || name != "config" {
			continue
		}
		if hasValue {
			return value
		}
		if i+1 < len(args) {
			return args[i+1]
		}
	}
	return envString(lookup, "SYSPOWER_CONFIG", "")
}

func run(ctx context.Context, args []string, lookup func(string) (string, bool), out, logOut io.Writer) error {
	fileCfg, err := config.Load(configPath(args, lookup))
	if err != nil {
		return err
	}
	cfg, err := parseConfig(args, lookup, fileCfg)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.saveConfig != "" {
		if err := config.Save(cfg.saveConfig, cfg.Config); err != nil {
			return fmt.Errorf("save config: %w", err)
		}
	}

	level, _ := logging.ParseLevel(cfg.Logging.Level)
	format, _ := logging.ParseFormat(cfg.Logging.Format)
	logger := logging.New(level, format, logOut)
	logging.SetDefault(logger)

	store, err := openStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer store.Close()

	if cfg.synthesize {
		layout, err := synth.Write(ctx, store, synth.Config{
			Drift:         0.05,
			Seed:          1,
			SysPowerTable: cfg.Tables.SysPower,
			AntennaTable:  cfg.Tables.Antenna,
			GainTable:     cfg.Tables.Gain,
		})
		if err != nil {
			return fmt.Errorf("synthesize: %w", err)
		}
		logger.Info("synthetic observation written",
			logging.F("antennas", len(layout.Antennas)),
			logging.F("times", len(layout.Times)),
			logging.F("start", flagging.FormatTime(layout.Times[0])))
		if cfg.FluxTimeRange == "" {
			cfg.FluxTimeRange = flagging.FormatTime(layout.Times[0]) + "~" + flagging.FormatTime(layout.Times[len(layout.Times)/5])
		}
	}

	in := syspower.Inputs{
		SysPowerTable: cfg.Tables.SysPower,
		AntennaTable:  cfg.Tables.Antenna,
		GainTable:     cfg.Tables.Gain,
		TemplateTable: cfg.Tables.Template,
	}
	if in.FluxWindow, err = cfg.FluxWindow(); err != nil {
		return fmt.Errorf("flux timerange: %w", err)
	}
	if cfg.OnlineFlags != "" {
		if in.OnlineFlags, err = readFlags(cfg.OnlineFlags); err != nil {
			return err
		}
		logger.Info("online flags loaded", logging.F("commands", len(in.OnlineFlags)))
	}

	hub := telemetry.NewHub(cfg.Telemetry.HistoryLimit, logger)
	prom := telemetry.NewPromReporter()
	reporter := telemetry.MultiReporter{telemetry.NewStdoutReporter(logger), hub, prom}

	corrector, err := syspower.New(store, reporter, logger, cfg.Correction)
	if err != nil {
		return err
	}
	res, err := corrector.Prepare(ctx, in)
	if err != nil {
		return err
	}
	curves := make([]telemetry.Curve, 0, len(res.Templates))
	for _, t := range res.Templates {
		curves = append(curves, t.Curve())
	}
	hub.SetCurves(curves)

	if cfg.Telemetry.MetricsTextfile != "" {
		if err := prom.WriteTextfile(cfg.Telemetry.MetricsTextfile); err != nil {
			logger.Warn("write metrics textfile", logging.F("path", cfg.Telemetry.MetricsTextfile), logging.F("err", err))
		}
	}
	printSummary(out, in, res)

	if cfg.Telemetry.WebAddr != "" {
		logger.Info("serving templates until interrupted", logging.F("addr", cfg.Telemetry.WebAddr))
		telemetry.NewWebServer(cfg.Telemetry.WebAddr, hub, prom.Registry()).Start(ctx)
	}
	return nil
}

func openStore(ctx context.Context, sc config.StoreConfig) (table.Store, error) {
	switch sc.Backend {
	case config.BackendMemory:
		return table.NewMemory(), nil
	case config.BackendSQLite:
		return table.OpenSQLite(ctx, sc.Path)
	default:
		return nil, fmt.Errorf("unknown store backend %s", sc.Backend)
	}
}

func readFlags(path string) (flagging.List, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open online flags: %w", err)
	}
	defer f.Close()
	flags, err := flagging.ReadCommands(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return flags, nil
}

func printSummary(out io.Writer, in syspower.Inputs, res syspower.Result) {
	masked := 0
	samples := 0
	for _, t := range res.Templates {
		masked += t.Series.MaskedCount()
		samples += t.Series.Len()
	}
	fmt.Fprintf(out, "templates:        %s (%s of %s samples masked)\n",
		humanize.Comma(int64(len(res.Templates))), humanize.Comma(int64(masked)), humanize.Comma(int64(samples)))
	fmt.Fprintf(out, "gain table:       %s, %s rows, %s newly flagged\n",
		in.GainTable, humanize.Comma(int64(res.Rows)), humanize.Comma(int64(res.RowsFlagged)))
	fmt.Fprintf(out, "correction:       %s\n", outcomeText(res.Gain))
	fmt.Fprintf(out, "template table:   %s\n", outcomeText(res.Diagnostic))
}

func outcomeText(o syspower.Outcome) string {
	if o.Applied {
		return "applied"
	}
	return "NOT applied: " + o.Reason
}

func envFloat(lookup func(string) (string, bool), key string, def float64) float64 {
	if val, ok := lookup(key); ok {
		if parsed, err := strconv.ParseFloat(val, 64); err == nil {
			return parsed
		}
	}
	return def
}

func envInt(lookup func(string) (string, bool), key string, def int) int {
	if val, ok := lookup(key); ok {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}

func envBool(lookup func(string) (string, bool), key string, def bool) bool {
	if val, ok := lookup(key); ok {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return parsed
		}
	}
	return def
}

func envString(lookup func(string) (string, bool), key, def string) string {
	if val, ok := lookup(key); ok {
		return val
	}
	return def
}
