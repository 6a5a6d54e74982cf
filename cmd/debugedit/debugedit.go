// Package debugedit is the CLI surface: a cobra.Command root that reads
// one or more ELF object/shared-library/executable files, runs
// internal/edit's rewrite over each, and writes the result back in
// place, mirroring original_source/tools/debugedit.c's optionsTable and
// the teacher's cmd/root.go wiring (cobra + viper + cobra.OnInitialize).
package debugedit

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/Manu343726/debugedit/internal/edit"
	"github.com/Manu343726/debugedit/internal/sourcelist"
	"github.com/Manu343726/debugedit/internal/telemetry"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	colorFormatViolation     = color.New(color.FgRed, color.Bold)
	colorConstraintViolation = color.New(color.FgYellow, color.Bold)
	colorInfo                = color.New(color.FgCyan)
)

var cfgFile string

// RootCmd is debugedit's entry point: `debugedit [OPTION...] FILE...`.
var RootCmd = &cobra.Command{
	Use:   "debugedit [flags] FILE...",
	Short: "Rewrite DWARF debug info to canonicalize build-tree paths",
	Long: `debugedit rewrites the DWARF debug information embedded in ELF object
files, shared libraries, and executables so that build-tree paths
(typically under --base-dir) are replaced with a canonical destination
path (--dest-dir), the way build systems relocate debug source trees
under a fixed /usr/src/debug-style layout.`,
	Args: cobra.MinimumNArgs(0),
	RunE: runDebugedit,
}

func init() {
	RootCmd.AddCommand(classifyArCmd)
	RootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.debugedit.yaml)")

	flags := RootCmd.Flags()
	flags.StringP("base-dir", "b", "", "the build-tree directory to replace")
	flags.StringP("dest-dir", "d", "", "the canonical destination directory")
	flags.StringP("list-file", "l", "", "append every resolved source path to this file")
	flags.BoolP("build-id", "i", false, "recompute (or, with -n, just report) the file's GNU build-ID note")
	flags.StringP("build-id-seed", "s", "", "extra seed string mixed into the build-ID hash")
	flags.BoolP("no-recompute-build-id", "n", false, "report the existing build-ID instead of recomputing it")
	flags.BoolP("preserve-dates", "p", false, "restore atime/mtime on each file after rewriting")
	flags.BoolP("verbose", "v", false, "also emit a JSON log stream alongside the text diagnostics")
	flags.BoolVar(&dumpConfig, "dump-config", false, "print the resolved configuration as YAML and exit")

	viper.BindPFlag("base_dir", flags.Lookup("base-dir"))
	viper.BindPFlag("dest_dir", flags.Lookup("dest-dir"))
	viper.BindPFlag("list_file", flags.Lookup("list-file"))
	viper.BindPFlag("build_id", flags.Lookup("build-id"))
	viper.BindPFlag("build_id_seed", flags.Lookup("build-id-seed"))
	viper.BindPFlag("no_recompute_build_id", flags.Lookup("no-recompute-build-id"))
	viper.BindPFlag("preserve_dates", flags.Lookup("preserve-dates"))
	viper.BindPFlag("verbose", flags.Lookup("verbose"))

	cobra.OnInitialize(initConfig)
}

var dumpConfig bool

// initConfig reads in an optional config file and DEBUGEDIT_* env vars,
// following cmd/root.go's initConfig almost verbatim.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".debugedit")
	}

	viper.SetEnvPrefix("DEBUGEDIT")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func currentConfig() fileConfig {
	return fileConfig{
		BaseDir:            viper.GetString("base_dir"),
		DestDir:            viper.GetString("dest_dir"),
		ListFile:           viper.GetString("list_file"),
		BuildID:            viper.GetBool("build_id"),
		BuildIDSeed:        viper.GetString("build_id_seed"),
		NoRecomputeBuildID: viper.GetBool("no_recompute_build_id"),
		PreserveDates:      viper.GetBool("preserve_dates"),
		Verbose:            viper.GetBool("verbose"),
	}
}

func runDebugedit(cmd *cobra.Command, args []string) error {
	cfg := currentConfig()

	if dumpConfig {
		out, err := cfg.dumpYAML()
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), out)
		return nil
	}

	if len(args) == 0 {
		return cmd.Help()
	}

	log := telemetry.New(telemetry.Options{Verbose: cfg.Verbose})
	ctx := context.Background()

	var listFile *os.File
	var sink edit.SourceSink
	if cfg.ListFile != "" {
		f, err := os.OpenFile(cfg.ListFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			colorFormatViolation.Fprintf(cmd.ErrOrStderr(), "cannot open list file %s: %v\n", cfg.ListFile, err)
			return err
		}
		listFile = f
		defer listFile.Close()
		sink = sourcelist.New(listFile)
	}

	var failed bool
	for _, path := range args {
		if err := processFile(ctx, path, cfg, sink, log); err != nil {
			failed = true
			colorFormatViolation.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", path, err)
		}
	}

	if failed {
		return fmt.Errorf("one or more files failed to process")
	}
	return nil
}

func processFile(ctx context.Context, path string, cfg fileConfig, sink edit.SourceSink, log *slog.Logger) error {
	a, err := widenForWrite(path)
	if err != nil {
		return err
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	result, err := edit.RewriteFile(raw, edit.Config{
		BaseDir:            cfg.BaseDir,
		DestDir:            cfg.DestDir,
		Sink:               sink,
		RecomputeBuildID:   cfg.BuildID,
		BuildIDSeed:        cfg.BuildIDSeed,
		NoRecomputeBuildID: cfg.NoRecomputeBuildID,
		WarnOverflow: func(cuOffset int64, original, attempted string) {
			telemetry.WarnFormatOverflow(ctx, log, cuOffset, original, attempted)
		},
		WarnDummyStrOffset: func(tableOffset int64, entryIndex int, origOffset uint32) {
			telemetry.WarnUnreachableStrOffsetsEntry(ctx, log, tableOffset, entryIndex, origOffset)
		},
	})
	if err != nil {
		return err
	}

	if !bytes.Equal(result.Data, raw) {
		if err := os.WriteFile(path, result.Data, a.mode|0600); err != nil {
			return err
		}
	}

	if result.BuildIDHex != "" {
		colorInfo.Printf("%s: build-id %s\n", path, result.BuildIDHex)
	}

	return restoreAttrs(path, a, cfg.PreserveDates)
}
