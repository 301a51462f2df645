package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/go-gum/unpack/archive/pck"
	"github.com/go-gum/unpack/archive/rpa"
	"github.com/go-gum/unpack/archive/vpk"
	"github.com/go-gum/unpack/extract"
	"github.com/go-gum/unpack/vfs"
	"go.uber.org/zap"
)

func main() {
	var (
		configFile = flag.String("config", "", "TOML configuration file")
		output     = flag.String("o", "", "Output directory")
		mode       = flag.String("mode", "", "What to do with existing files: keep, clean or overwrite")
		workers    = flag.Int("workers", 0, "Number of files extracted in parallel")
		convert    = flag.Bool("convert", true, "Convert scripts, textures and resources")
		key        = flag.String("key", "", "Hex key replacing the key of an RPA archive")
		verbose    = flag.Bool("v", false, "Verbose logging")
	)
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: unpack [-config file] [-o dir] [-mode keep|clean|overwrite] [-workers n] [-convert=false] [-key hex] [-v] <input>")
		fmt.Fprintln(os.Stderr, "       input is an RPA archive, a PCK archive, a VPK directory file or a directory")
		os.Exit(2)
	}

	config := extract.DefaultConfig()
	if *configFile != "" {
		var err error
		if config, err = extract.LoadConfig(*configFile); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	// flags given on the command line win over the configuration file
	var flagErr error
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "o":
			config.Output = *output
		case "mode":
			config.Mode = extract.Mode(*mode)
		case "workers":
			config.Workers = *workers
		case "convert":
			config.Convert = *convert
		case "key":
			value, err := strconv.ParseUint(*key, 16, 64)
			if err != nil {
				flagErr = fmt.Errorf("parse key %q: %w", *key, err)
				return
			}

			config.RPA.KeyOverride = &value
		}
	})

	if flagErr != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", flagErr)
		os.Exit(2)
	}

	log, err := newLogger(*verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, log, config, flag.Arg(0)); err != nil {
		log.Error("Extraction failed", zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}

	return zap.NewProduction()
}

func run(ctx context.Context, log *zap.Logger, config extract.Config, input string) error {
	dir, closer, err := openInput(log, config, input)
	if err != nil {
		return err
	}

	defer closer.Close()

	pipeline := extract.Pipeline{Config: config, Logger: log}

	report, err := pipeline.Run(ctx, dir)
	if err != nil {
		return err
	}

	if len(report.Failures) > 0 {
		return fmt.Errorf("%d of %d files failed: %w",
			len(report.Failures), len(report.Failures)+report.Written+report.Skipped, report.Err())
	}

	return nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

type closers []io.Closer

func (c closers) Close() error {
	var firstErr error
	for _, closer := range c {
		if err := closer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

// openInput detects the kind of input by its magic. Anything that is not a known
// archive must be a directory.
func openInput(log *zap.Logger, config extract.Config, input string) (vfs.Directory, io.Closer, error) {
	stat, err := os.Stat(input)
	if err != nil {
		return nil, nil, err
	}

	if stat.IsDir() {
		log.Info("Extracting directory", zap.String("input", input))
		return vfs.FromFS(os.DirFS(input), "."), nopCloser{}, nil
	}

	fp, err := os.Open(input)
	if err != nil {
		return nil, nil, err
	}

	header := make([]byte, 64)
	n, err := fp.ReadAt(header, 0)
	if err != nil && err != io.EOF {
		_ = fp.Close()
		return nil, nil, fmt.Errorf("read header: %w", err)
	}

	header = header[:n]

	log = log.With(
		zap.String("input", input),
		zap.String("size", humanize.Bytes(uint64(stat.Size()))),
	)

	switch {
	case rpa.Detect(header):
		var opts rpa.Options
		if config.RPA.KeyOverride != nil {
			opts = rpa.Options{Key: *config.RPA.KeyOverride, HasKey: true}
		}

		archive, err := rpa.OpenWithOptions(fp, stat.Size(), opts)
		if err != nil {
			_ = fp.Close()
			return nil, nil, fmt.Errorf("open archive: %w", err)
		}

		log.Info("Extracting RPA archive",
			zap.String("version", archive.Version),
			zap.Int("files", len(archive.Files())),
		)

		return archive, fp, nil

	case pck.Detect(header):
		archive, err := pck.Open(fp, stat.Size())
		if err != nil {
			_ = fp.Close()
			return nil, nil, fmt.Errorf("open archive: %w", err)
		}

		log.Info("Extracting PCK archive",
			zap.Int32("format", archive.Version.Format),
			zap.String("engine", fmt.Sprintf("%d.%d.%d", archive.Version.Major, archive.Version.Minor, archive.Version.Patch)),
			zap.Int("files", len(archive.Files())),
		)

		return archive, fp, nil

	case vpk.Detect(header):
		archive, err := vpk.Open(fp, stat.Size(), vpk.FileOpener(input))
		if err != nil {
			_ = fp.Close()
			return nil, nil, fmt.Errorf("open archive: %w", err)
		}

		log.Info("Extracting VPK archive",
			zap.Uint32("version", archive.Version),
			zap.Int("files", len(archive.Files())),
		)

		return archive, closers{archive, fp}, nil

	default:
		_ = fp.Close()
		return nil, nil, fmt.Errorf("%s: not an RPA, PCK or VPK archive", input)
	}
}
