package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/alefaraci/GoRaster/internal/logging"
	"github.com/alefaraci/GoRaster/internal/oops"
	"github.com/alefaraci/GoRaster/internal/raster"
)

var (
	configPath string
	logLevel   string
	config     *Config
)

var rootCommand = &cobra.Command{
	Use:           "goraster",
	Short:         "Convert PNG images to 32-bit BMP",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := LoadConfig(configPath)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("log-level") || cfg.Log.Level == "" {
			cfg.Log.Level = logLevel
		}
		if err := logging.SetLevel(cfg.Log.Level); err != nil {
			return err
		}
		config = cfg
		return nil
	},
}

func init() {
	rootCommand.PersistentFlags().StringVar(&configPath, "config", "config.toml", "Path to config file (TOML)")
	rootCommand.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (trace, debug, info, warn, error)")

	var input, output string
	convertCommand := &cobra.Command{
		Use:   "convert -i <input> [-o <output>]",
		Short: "Convert a .png or .bmp file, or every image in a directory",
		Long:  "Convert a single image to <output>.bmp, or mirror a directory of images into an output directory of 32-bit RGBA bitmaps.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := os.Stat(input)
			if err != nil {
				return fmt.Errorf("input path '%s' does not exist", input)
			}
			if info.IsDir() {
				if output == "" {
					output = input
				}
				return processDirectory(input, output, config)
			}
			if output == "" {
				output = defaultOutputName(input)
			}
			return processSingleFile(input, output, config)
		},
	}
	convertCommand.Flags().StringVarP(&input, "input", "i", "", "Input file (.png or .bmp) or directory")
	convertCommand.Flags().StringVarP(&output, "output", "o", "", "Output name (.bmp is appended) or directory")
	convertCommand.MarkFlagRequired("input")
	rootCommand.AddCommand(convertCommand)

	infoCommand := &cobra.Command{
		Use:   "info <file>...",
		Short: "Print header and metadata of .png and .bmp files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var failed error
			for _, path := range args {
				img, err := openImage(path, config)
				if err != nil {
					logging.Error().Err(err).Str("file", path).Msg("failed to read image")
					failed = err
					continue
				}
				printInfo(cmd.OutOrStdout(), img)
			}
			return failed
		},
	}
	rootCommand.AddCommand(infoCommand)

	watchCommand := &cobra.Command{
		Use:   "watch",
		Short: "Run as a daemon converting images in the [watch] input directories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if config.Watch.Location == "" {
				return errors.New("[watch] location must be set in config for watch mode")
			}
			if len(config.Watch.InputDirs()) == 0 {
				return errors.New("[watch] requires at least one directory in inputs")
			}

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return runWatchMode(ctx, config)
		},
	}
	rootCommand.AddCommand(watchCommand)
}

func main() {
	defer logging.LogPanics(nil)
	if err := rootCommand.Execute(); err != nil {
		logging.Error().Err(err).Msg("goraster failed")
		os.Exit(1)
	}
}

func printInfo(w io.Writer, img raster.Image) {
	for _, f := range img.Info() {
		fmt.Fprintf(w, "%-30s%v\n", f.Name, f.Value)
	}
	fmt.Fprintln(w)
}

func processSingleFile(inputFile, outputName string, cfg *Config) error {
	if !isSourceImage(inputFile) {
		return fmt.Errorf("input file '%s' must have a .png or .bmp extension", inputFile)
	}
	out := bmpPath(outputName)
	if info, err := os.Stat(out); err == nil && info.IsDir() {
		return fmt.Errorf("input is a file, but output '%s' is a directory; specify an output name", out)
	}

	if !cfg.Convert.Overwrite && isUpToDate(inputFile, out) {
		logging.Info().Str("output", out).Msg("already up-to-date, skipping")
		return nil
	}

	if dir := filepath.Dir(out); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	start := time.Now()
	written, err := ConvertFile(inputFile, outputName, cfg)
	if err != nil {
		return err
	}

	logging.Info().
		Str("input", inputFile).
		Str("output", written).
		Dur("took", time.Since(start)).
		Msg("converted")
	return nil
}

type convJob struct {
	input  string
	output string // name without the .bmp suffix
}

// collectJobs walks inputDir for convertible images. Bitmaps are only picked
// up when they would not be converted onto themselves.
func collectJobs(inputDir, outputDir string, overwrite bool) ([]convJob, int, error) {
	sameRoot := filepath.Clean(inputDir) == filepath.Clean(outputDir)

	var jobs []convJob
	var numSkipped int

	err := filepath.WalkDir(inputDir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		format, err := raster.FormatForPath(path)
		if err != nil {
			return nil
		}
		if format == raster.FormatBMP && sameRoot {
			return nil
		}

		rel, _ := filepath.Rel(inputDir, path)
		out := filepath.Join(outputDir, defaultOutputName(rel))
		if !overwrite && isUpToDate(path, bmpPath(out)) {
			numSkipped++
			return nil
		}
		jobs = append(jobs, convJob{input: path, output: out})
		return nil
	})
	return jobs, numSkipped, err
}

func processDirectory(inputDir, outputDir string, cfg *Config) error {
	if info, err := os.Stat(outputDir); err == nil && !info.IsDir() {
		return fmt.Errorf("input is a directory, but output '%s' is a file; specify an output directory", outputDir)
	}

	logging.Info().Str("dir", inputDir).Msg("scanning for .png and .bmp files")

	jobs, numSkipped, err := collectJobs(inputDir, outputDir, cfg.Convert.Overwrite)
	if err != nil {
		return err
	}

	if len(jobs) == 0 && numSkipped == 0 {
		logging.Info().Msg("no images found")
		return nil
	}

	if len(jobs) == 0 {
		logging.Info().Int("skipped", numSkipped).Msg("all files are already up-to-date, nothing to do")
		return nil
	}

	logging.Info().Int("jobs", len(jobs)).Int("skipped", numSkipped).Msg("found modified files to convert")
	start := time.Now()

	var (
		completed atomic.Int64
		failed    atomic.Int64
		wg        sync.WaitGroup
	)
	total := int64(len(jobs))
	sem := make(chan struct{}, runtime.GOMAXPROCS(0))

	for _, j := range jobs {
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer func() { <-sem; wg.Done() }()
			defer logging.LogPanics(nil)

			if dir := filepath.Dir(j.output); dir != "." {
				if err := os.MkdirAll(dir, 0755); err != nil {
					logging.Error().Err(err).Str("dir", dir).Msg("failed to create directory")
					failed.Add(1)
					return
				}
			}
			if _, err := ConvertFile(j.input, j.output, cfg); err != nil {
				logging.Error().Err(err).Int64("offset", raster.OffsetOf(err)).Msg("conversion failed")
				failed.Add(1)
				return
			}
			n := completed.Add(1)
			logging.Debug().Str("file", filepath.Base(j.input)).Msgf("[%d/%d] converted", n, total)
		}()
	}
	wg.Wait()

	logging.Info().
		Int64("converted", completed.Load()).
		Int64("failed", failed.Load()).
		Dur("took", time.Since(start)).
		Msg("directory conversion finished")

	if n := failed.Load(); n > 0 {
		return oops.New(nil, "%d of %d files failed to convert", n, total)
	}
	return nil
}

// hasSuffixFold reports whether s ends with suffix, ignoring case.
func hasSuffixFold(s, suffix string) bool {
	return len(s) >= len(suffix) && strings.EqualFold(s[len(s)-len(suffix):], suffix)
}
