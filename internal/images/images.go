// Package images copies source images into the output tree, re-encoding
// JPEG, PNG and GIF files to shrink them. Only files newer than their output
// copy are processed.
package images

import (
	"bytes"
	"context"
	"image/png"
	"os"
	"path/filepath"
	"runtime"
	"sync/atomic"

	"github.com/disintegration/imaging"
	"github.com/mailwright/mailwright/internal/config"
	"github.com/mailwright/mailwright/internal/errors"
	"github.com/mailwright/mailwright/internal/fileset"
	"github.com/mailwright/mailwright/internal/logging"
	"github.com/mailwright/mailwright/internal/pipeline"
	"golang.org/x/sync/errgroup"
)

// Report summarizes one optimizer run.
type Report struct {
	Processed int
	Skipped   int
}

// Optimizer is the images stage.
type Optimizer struct {
	files     fileset.Set
	outputDir string
	quality   int
	level     png.CompressionLevel
	workers   int
	logger    logging.Logger
}

// New creates an Optimizer for cfg.
func New(cfg *config.Config, logger logging.Logger) *Optimizer {
	return &Optimizer{
		files:     fileset.New(cfg.Paths.Images, []string{"**/*"}, cfg.Paths.ArchiveExclude()...),
		outputDir: cfg.Paths.ImagesOutputDir(),
		quality:   cfg.Images.JPEGQuality,
		level:     compressionLevel(cfg.Images.PNGOptimizationLevel),
		workers:   runtime.NumCPU(),
		logger:    logger.WithComponent("images"),
	}
}

// compressionLevel maps an optimization level (0-7) onto the encoder's
// coarser settings.
func compressionLevel(level int) png.CompressionLevel {
	switch {
	case level <= 1:
		return png.DefaultCompression
	case level <= 4:
		return png.BestSpeed
	default:
		return png.BestCompression
	}
}

func (o *Optimizer) Name() pipeline.StageName { return pipeline.StageImages }

func (o *Optimizer) Run(ctx context.Context) error {
	_, err := o.Optimize(ctx)
	return err
}

// Optimize processes every stale image. Failures of individual files do not
// stop the others; they are joined into the returned error.
func (o *Optimizer) Optimize(ctx context.Context) (Report, error) {
	files, err := o.files.Files()
	if err != nil {
		return Report{}, errors.NewFilesystemError(errors.ErrCodeRead, "listing images", err).WithPath(o.files.Root)
	}

	var processed, skipped atomic.Int64
	errs := errors.NewCollector()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.workers)
	for _, rel := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			done, err := o.process(rel)
			switch {
			case err != nil:
				o.logger.Error(gctx, err, "Image failed", "image", rel)
				errs.Add(err)
			case done:
				processed.Add(1)
			default:
				skipped.Add(1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Report{}, err
	}

	report := Report{Processed: int(processed.Load()), Skipped: int(skipped.Load())}
	o.logger.Info(ctx, "Optimized images", "processed", report.Processed, "skipped", report.Skipped)
	return report, errs.Err()
}

// process handles one file. It reports false when the output copy is
// already up to date.
func (o *Optimizer) process(rel string) (bool, error) {
	src := o.files.Abs(rel)
	dest := filepath.Join(o.outputDir, filepath.FromSlash(rel))

	srcInfo, err := os.Stat(src)
	if err != nil {
		return false, errors.NewFilesystemError(errors.ErrCodeRead, "stat image", err).WithPath(src)
	}
	if destInfo, err := os.Stat(dest); err == nil && !srcInfo.ModTime().After(destInfo.ModTime()) {
		return false, nil
	}

	data, err := os.ReadFile(src)
	if err != nil {
		return false, errors.NewFilesystemError(errors.ErrCodeRead, "reading image", err).WithPath(src)
	}

	out, perr := o.optimize(rel, data)
	if perr != nil {
		return false, perr.WithPath(src)
	}

	if err := fileset.WriteFile(dest, out); err != nil {
		return false, errors.NewFilesystemError(errors.ErrCodeWrite, "writing image", err).WithPath(dest)
	}
	return true, nil
}

// optimize re-encodes raster formats it knows and returns whichever of the
// original and re-encoded bytes is smaller. Other formats pass through.
func (o *Optimizer) optimize(rel string, data []byte) ([]byte, *errors.PipelineError) {
	format, err := imaging.FormatFromFilename(rel)
	if err != nil {
		return data, nil
	}

	var opts []imaging.EncodeOption
	switch format {
	case imaging.JPEG:
		opts = append(opts, imaging.JPEGQuality(o.quality))
	case imaging.PNG:
		opts = append(opts, imaging.PNGCompressionLevel(o.level))
	case imaging.GIF:
	default:
		return data, nil
	}

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.NewImageError(errors.ErrCodeImageDecode, "decoding image", err)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, format, opts...); err != nil {
		return nil, errors.NewImageError(errors.ErrCodeImageEncode, "encoding image", err)
	}

	if buf.Len() >= len(data) {
		return data, nil
	}
	return buf.Bytes(), nil
}
