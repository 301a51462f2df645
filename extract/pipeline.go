// Package extract writes the files of a vfs.Directory to disk, converting the ones
// a Converter accepts.
package extract

import (
	"context"
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/go-gum/unpack/vfs"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrEscapesOutput is returned for a file path pointing outside of the output directory.
var ErrEscapesOutput = stderrors.New("path escapes the output directory")

const resourcePrefix = "res://"

// Pipeline extracts all files of a directory. Files are processed concurrently by
// Config.Workers workers. A file that fails is recorded in the Report and the
// extraction continues.
type Pipeline struct {
	Config Config

	// Logger defaults to a no-op logger.
	Logger *zap.Logger

	// Converters defaults to DefaultConverters. They are only used if Config.Convert is set.
	Converters []Converter
}

// Failure is a file that could not be extracted.
type Failure struct {
	Path string
	Err  error
}

func (f Failure) Error() string {
	return fmt.Sprintf("%s: %s", f.Path, f.Err)
}

func (f Failure) Unwrap() error {
	return f.Err
}

type Report struct {
	Written   int
	Converted int
	Skipped   int

	// Bytes is the total size of all written files.
	Bytes uint64

	Failures []Failure
}

// Err joins all failures, nil if there are none.
func (r *Report) Err() error {
	errs := make([]error, len(r.Failures))
	for idx, failure := range r.Failures {
		errs[idx] = failure
	}

	return stderrors.Join(errs...)
}

func (p *Pipeline) logger() *zap.Logger {
	if p.Logger == nil {
		return zap.NewNop()
	}

	return p.Logger
}

func (p *Pipeline) converters() []Converter {
	if !p.Config.Convert {
		return nil
	}

	if p.Converters == nil {
		return DefaultConverters()
	}

	return p.Converters
}

// Run extracts every file below dir. The returned error is non nil only if the
// extraction as a whole failed: the directory could not be listed, the output
// could not be prepared or ctx was cancelled. Failures of single files are
// reported in the Report.
func (p *Pipeline) Run(ctx context.Context, dir vfs.Directory) (Report, error) {
	log := p.logger()

	config := p.Config
	if err := config.Validate(); err != nil {
		return Report{}, err
	}

	if config.Mode == ModeClean {
		log.Info("Removing output directory", zap.String("output", config.Output))

		if err := os.RemoveAll(config.Output); err != nil {
			return Report{}, fmt.Errorf("clean output: %w", err)
		}
	}

	if err := os.MkdirAll(config.Output, 0o755); err != nil {
		return Report{}, fmt.Errorf("create output: %w", err)
	}

	var (
		mu     sync.Mutex
		report Report
	)

	record := func(update func(r *Report)) {
		mu.Lock()
		defer mu.Unlock()
		update(&report)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(config.Workers)

	walkErr := vfs.Walk(dir, func(file vfs.File) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		g.Go(func() error {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			p.extractFile(log, &config, file, record)
			return nil
		})

		return nil
	})

	if err := g.Wait(); err != nil && walkErr == nil {
		walkErr = err
	}

	if walkErr != nil {
		return report, fmt.Errorf("extract: %w", walkErr)
	}

	log.Info("Extraction done",
		zap.Int("written", report.Written),
		zap.Int("converted", report.Converted),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", len(report.Failures)),
		zap.String("size", humanize.Bytes(report.Bytes)),
	)

	return report, nil
}

func (p *Pipeline) extractFile(log *zap.Logger, config *Config, file vfs.File, record func(func(*Report))) {
	path := file.Path()
	log = log.With(zap.String("path", path))

	fail := func(err error) {
		log.Error("Failed to extract file", zap.Error(err))
		record(func(r *Report) { r.Failures = append(r.Failures, Failure{Path: path, Err: err}) })
	}

	if config.Skips(vfs.Ext(path)) {
		log.Warn("Skipping file by extension")
		record(func(r *Report) { r.Skipped++ })
		return
	}

	data, err := file.ReadData()
	if err != nil {
		fail(fmt.Errorf("read: %w", err))
		return
	}

	outPath, outData, converted := p.convert(log, path, data)

	target, err := OutputPath(config.Output, outPath)
	if err != nil {
		fail(err)
		return
	}

	written, err := writeFile(target, outData, config.Mode == ModeKeep)
	if err != nil {
		fail(err)
		return
	}

	if !written {
		log.Debug("Keeping existing file", zap.String("target", target))
		record(func(r *Report) { r.Skipped++ })
		return
	}

	log.Info("Extracted file",
		zap.String("target", target),
		zap.String("size", humanize.Bytes(uint64(len(outData)))),
	)

	record(func(r *Report) {
		r.Written++
		r.Bytes += uint64(len(outData))
		if converted {
			r.Converted++
		}
	})
}

// convert applies the first converter accepting the file. Without a converter, or
// if the conversion fails, the file is returned unchanged.
func (p *Pipeline) convert(log *zap.Logger, path string, data []byte) (string, []byte, bool) {
	for _, converter := range p.converters() {
		if !converter.Accepts(path, data) {
			continue
		}

		output, err := converter.Convert(path, data)
		if err != nil {
			log.Warn("Conversion failed, writing file unchanged",
				zap.String("converter", converter.Name()),
				zap.Error(err),
			)

			return path, data, false
		}

		if output.Warning != "" {
			log.Warn(output.Warning, zap.String("converter", converter.Name()))
		}

		return output.Path, output.Data, true
	}

	return path, data, false
}

// OutputPath maps the path of a file inside an archive to a path below root.
// The res:// prefix is removed, paths leaving root are rejected.
func OutputPath(root, path string) (string, error) {
	rel := strings.TrimPrefix(path, resourcePrefix)
	rel = filepath.FromSlash(rel)

	if !filepath.IsLocal(rel) {
		return "", fmt.Errorf("%q: %w", path, ErrEscapesOutput)
	}

	return filepath.Join(root, rel), nil
}

// writeFile writes data to target, creating parent directories. With keep set, an
// existing file is left alone and written is false.
func writeFile(target string, data []byte, keep bool) (written bool, err error) {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return false, fmt.Errorf("create directory: %w", err)
	}

	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if keep {
		flags = os.O_WRONLY | os.O_CREATE | os.O_EXCL
	}

	fp, err := os.OpenFile(target, flags, 0o644)
	if err != nil {
		if keep && stderrors.Is(err, fs.ErrExist) {
			return false, nil
		}

		return false, fmt.Errorf("open %s: %w", target, err)
	}

	if _, err := fp.Write(data); err != nil {
		_ = fp.Close()
		return false, fmt.Errorf("write %s: %w", target, err)
	}

	if err := fp.Close(); err != nil {
		return false, fmt.Errorf("close %s: %w", target, err)
	}

	return true, nil
}
