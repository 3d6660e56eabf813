package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"AddonLoader/internal/config"
	"AddonLoader/internal/journal"
	"AddonLoader/pkg/addon"
	"AddonLoader/pkg/logger"
)

type rootOptions struct {
	configPath string
	addonsDir  string
	mainClass  string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "addonloaderd",
		Short: "Discover and load addons into a scene tree",
		Long: `addonloaderd scans an addons directory once, mounts resource packs,
loads code modules, attaches every addon to the scene tree and announces each
one with an AddonLoaded event.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "config file (YAML or TOML); defaults to $"+config.EnvConfigPath+" or "+config.DefaultPath)
	flags.StringVar(&opts.addonsDir, "addons-dir", "", "override the addons directory")
	flags.StringVar(&opts.mainClass, "main-class", "", "override the addon main class name")
	flags.StringVar(&opts.logLevel, "log-level", "", "override the log level (debug, info, warn, error)")

	cmd.AddCommand(newRunCmd(opts), newScanCmd(opts), newHistoryCmd(opts))
	return cmd
}

// loadConfig resolves the config file and applies flag overrides. A missing
// file falls back to defaults rooted at the working directory.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	path := config.ResolvePath(o.configPath)
	cfg, err := config.Load(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) || o.configPath != "" {
			return nil, err
		}
		wd, wdErr := os.Getwd()
		if wdErr != nil {
			return nil, wdErr
		}
		cfg = config.Default(wd)
	}

	if strings.TrimSpace(o.addonsDir) != "" {
		cfg.Addons.AddonsDir = o.addonsDir
	}
	if strings.TrimSpace(o.mainClass) != "" {
		cfg.Addons.MainClass = o.mainClass
	}
	if strings.TrimSpace(o.logLevel) != "" {
		cfg.Logging.Level = o.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := logger.Init(cfg.Logging); err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, nil
}

func newScanCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Scan the addons directory once and print the resulting tree",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			defer logger.Sync()

			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			summary := a.scan(cmd.Context())
			printSummary(cmd.OutOrStdout(), summary)
			a.printTree(cmd.OutOrStdout())
			return nil
		},
	}
}

func newRunCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Scan once, then keep the tree alive until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			defer logger.Sync()

			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.run(cmd.Context())
		},
	}
}

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List the most recent journaled addon outcomes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			defer logger.Sync()

			store, err := journal.Open(cmd.Context(), cfg.Journal.Driver, cfg.Journal.DSN)
			if err != nil {
				return err
			}
			if store == nil {
				return errors.New("journal is disabled")
			}
			defer store.Close()

			entries, err := store.ListLatest(cmd.Context(), limit)
			if err != nil {
				return err
			}
			printEntries(cmd.OutOrStdout(), entries)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of entries to show")
	return cmd
}

func printSummary(w io.Writer, s addon.Summary) {
	fmt.Fprintf(w, "scan %s: %d entries, %d loaded, %d abandoned, %d skipped\n",
		s.ScanID, s.Entries, s.Loaded, s.Abandoned, s.Skipped)
}

func printEntries(w io.Writer, entries []journal.Entry) {
	for _, e := range entries {
		status := "loaded"
		if !e.Loaded {
			status = "abandoned"
		}
		line := fmt.Sprintf("%s  %-24s %-13s %-12s %s", e.RecordedAt.Format("2006-01-02 15:04:05"), e.FileName, e.Kind, e.Reached, status)
		if e.ErrorCode != "" {
			line += " (" + e.ErrorCode + ")"
		}
		fmt.Fprintln(w, line)
	}
}

func logEvent(ctx context.Context, log *slog.Logger, event addon.Event) {
	log.DebugContext(ctx, "addon event", slog.String("addon", event.Addon), slog.String("kind", string(event.Kind)))
}
