package main

import (
	"fmt"
	"os"
	"time"

	"funes/internal/app"
	"funes/internal/config"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config file, falling back to built-in defaults when
// none exists.
func loadConfig() (*config.Config, string, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, "", fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.Load(defaults["config_path"], defaults["base_dir"])
	if err != nil {
		return nil, "", fmt.Errorf("reading config: %w", err)
	}
	return cfg, defaults["config_path"], nil
}

// newApp reads the config and creates a FunesApp. The caller must defer app.Close().
func newApp(opts app.Options) (*app.FunesApp, error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, err
	}

	a, err := app.NewFunesApp(cfg, opts)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

var rootCmd = &cobra.Command{
	Use:   "funes INPUT_DIR OUTPUT_FILE OUTPUT_ACTIONS",
	Short: "Archive a directory into a compressed tarball with a CSV manifest",
	Long: `Archives every regular, non-hidden file under INPUT_DIR into OUTPUT_FILE
(a compressed tar) and writes one manifest row per file to OUTPUT_ACTIONS
with the columns filename,md5,filesize,action.`,
	Args:         cobra.ExactArgs(3),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		compression, _ := cmd.Flags().GetString("compression")
		digestName, _ := cmd.Flags().GetString("digest")
		publish, _ := cmd.Flags().GetBool("publish")
		noHistory, _ := cmd.Flags().GetBool("no-history")

		a, err := newApp(app.Options{
			Compression: compression,
			Digest:      digestName,
			NoHistory:   noHistory,
		})
		if err != nil {
			return err
		}
		defer a.Close()

		result, err := a.Snapshot(args[0], args[1], args[2], publish)
		if err != nil {
			return err
		}

		fmt.Printf("Archived %d file(s), %d bytes, to %s\n", result.FileCount, result.TotalBytes, args[1])
		if publish {
			fmt.Printf("Published run %s\n", result.RunID)
		}
		return nil
	},
}

// verify command
var verifyCmd = &cobra.Command{
	Use:   "verify ARCHIVE MANIFEST",
	Short: "Check an archive against its manifest",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		compression, _ := cmd.Flags().GetString("compression")
		digestName, _ := cmd.Flags().GetString("digest")

		a, err := newApp(app.Options{Digest: digestName, NoHistory: true})
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := a.Verify(args[0], args[1], compression)
		if err != nil {
			return err
		}

		for _, m := range report.Mismatches {
			fmt.Println(m.String())
		}
		if err := report.Err(); err != nil {
			return err
		}

		fmt.Printf("OK: %d member(s) match the manifest\n", report.Members)
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View snapshot run history",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp(app.Options{})
		if err != nil {
			return err
		}
		defer a.Close()

		runs, err := a.GetHistory(limit)
		if err != nil {
			return err
		}

		if len(runs) == 0 {
			fmt.Println("No runs recorded.")
			return nil
		}

		for _, r := range runs {
			duration := ""
			if r.FinishedAt.Valid {
				duration = r.FinishedAt.Time.Sub(r.StartedAt).Truncate(time.Millisecond).String()
			}
			fmt.Printf("%s  %s  %-8s  %6d files  %10d bytes  %s  %s\n",
				r.ID,
				r.StartedAt.Format("2006-01-02 15:04:05"),
				r.Status,
				r.FileCount,
				r.TotalBytes,
				duration,
				r.Root,
			)
		}
		return nil
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show RUN_ID",
	Short: "List the files archived by a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(app.Options{})
		if err != nil {
			return err
		}
		defer a.Close()

		run, files, err := a.GetRun(args[0])
		if err != nil {
			return err
		}

		fmt.Printf("Run:      %s\n", run.ID)
		fmt.Printf("Root:     %s\n", run.Root)
		fmt.Printf("Archive:  %s (%s)\n", run.ArchivePath, run.Compression)
		fmt.Printf("Manifest: %s (%s)\n", run.ManifestPath, run.Digest)
		fmt.Printf("Status:   %s\n", run.Status)
		if run.Error != "" {
			fmt.Printf("Error:    %s\n", run.Error)
		}
		fmt.Println()
		for _, f := range files {
			fmt.Printf("%s  %10d  %s\n", f.Checksum, f.Size, f.RelativePath)
		}
		return nil
	},
}

// fetch command
var fetchCmd = &cobra.Command{
	Use:   "fetch RUN_ID DEST_DIR",
	Short: "Download a published run's archive and manifest from the vault",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(app.Options{})
		if err != nil {
			return err
		}
		defer a.Close()

		paths, err := a.Fetch(args[0], args[1])
		if err != nil {
			return err
		}
		for _, p := range paths {
			fmt.Println(p)
		}
		return nil
	},
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		hostID := uuid.New().String()
		cfg := config.NewConfig(hostID, defaults["base_dir"])

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Host ID: %s\n", hostID)
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
		fmt.Printf("Log Dir:  %s\n", defaults["log_dir"])
		fmt.Printf("History:  %s\n", defaults["db_dir"])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, path, err := loadConfig()
		if err != nil {
			return err
		}

		fmt.Printf("Configuration from %s:\n\n", path)
		fmt.Printf("Host ID:     %s\n", cfg.HostID)
		fmt.Printf("Base Dir:    %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:     %s\n", cfg.LogDir)
		fmt.Printf("Log Level:   %s\n", cfg.LogLevel)
		fmt.Printf("Compression: %s\n", cfg.Archive.Compression)
		fmt.Printf("Digest:      %s\n", cfg.Archive.Digest)
		fmt.Printf("Database:    %s %s\n", cfg.Database.Type, cfg.Database.DataDir)
		for _, v := range cfg.Vaults {
			fmt.Printf("Vault:       %s (%s)\n", v.Name, v.Type)
		}
		return nil
	},
}

func init() {
	rootCmd.Flags().StringP("compression", "c", "", "Archive compression: gzip, zstd, lz4 or none (default from config, else from OUTPUT_FILE's extension, else gzip)")
	rootCmd.Flags().StringP("digest", "d", "", "Checksum algorithm: md5, sha256 or blake3 (default from config, else md5)")
	rootCmd.Flags().Bool("publish", false, "Upload the archive, manifest and run history to the configured vault")
	rootCmd.Flags().Bool("no-history", false, "Do not record the run in the history database")

	verifyCmd.Flags().StringP("compression", "c", "", "Archive compression (default detected from the archive contents)")
	verifyCmd.Flags().StringP("digest", "d", "", "Checksum algorithm the manifest was written with")
	rootCmd.AddCommand(verifyCmd)

	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of runs to show")
	historyCmd.AddCommand(historyShowCmd)
	rootCmd.AddCommand(historyCmd)

	rootCmd.AddCommand(fetchCmd)

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
	rootCmd.AddCommand(configCmd)
}
