// Command spdgen generates the mip chain of an image with both engines,
// checks them against each other and writes every level.
//
// Usage:
//
//	spdgen -input photo.png -out mips
//	spdgen -width 1920 -height 1080 -mips 10 -wide -backend gpu -fallback
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/term"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/gogpu/spd"
)

type config struct {
	input    string
	width    int
	height   int
	mips     int
	wide     bool
	fallback bool
	backend  string
	workers  int
	validate bool
	out      string
	format   string
	half     bool
	sheet    bool
	verbose  bool
}

func main() {
	var cfg config
	flag.StringVar(&cfg.input, "input", "", "source image (PNG, JPEG, BMP, TIFF); empty synthesizes a checkerboard")
	flag.IntVar(&cfg.width, "width", 1024, "synthesized source width")
	flag.IntVar(&cfg.height, "height", 1024, "synthesized source height")
	flag.IntVar(&cfg.mips, "mips", 0, "number of levels; 0 generates the full chain")
	flag.BoolVar(&cfg.wide, "wide", false, "use 64x64 blocks and 256-thread workgroups")
	flag.BoolVar(&cfg.fallback, "fallback", false, "use the shared-memory quad reduction")
	flag.StringVar(&cfg.backend, "backend", "cpu", "backend: cpu or gpu")
	flag.IntVar(&cfg.workers, "workers", 0, "cpu backend workers; 0 uses GOMAXPROCS")
	flag.BoolVar(&cfg.validate, "validate", false, "enable hazard tracking in the cpu backend")
	flag.StringVar(&cfg.out, "out", "mips", "output directory")
	flag.StringVar(&cfg.format, "format", "png", "level format: png, bmp or tiff")
	flag.BoolVar(&cfg.half, "half", false, "also write each level as raw RGBA16F")
	flag.BoolVar(&cfg.sheet, "sheet", true, "write a contact sheet of all levels")
	flag.BoolVar(&cfg.verbose, "v", false, "debug logging")
	flag.Parse()

	if cfg.verbose {
		spd.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatalf("spdgen: %v", err)
	}
}

func run(ctx context.Context, cfg config) error {
	src, err := loadSource(cfg)
	if err != nil {
		return err
	}
	w, h := src.Bounds()
	mips := cfg.mips
	if mips == 0 {
		mips = spd.MaxLevels(w, h)
	}

	progress := term.IsTerminal(int(os.Stdout.Fd()))
	engines := []spd.Engine{spd.SinglePass, spd.MultiPass}
	chains := make([]*spd.MipChain, len(engines))
	elapsed := make([]time.Duration, len(engines))

	g, gctx := errgroup.WithContext(ctx)
	for i, engine := range engines {
		g.Go(func() error {
			start := time.Now()
			chain, err := generate(gctx, cfg, engine, src, mips)
			if err != nil {
				return fmt.Errorf("%s: %w", engine, err)
			}
			chains[i], elapsed[i] = chain, time.Since(start)
			if progress {
				fmt.Printf("  %-12s done in %v\n", engine, elapsed[i].Round(time.Microsecond))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if err := crossCheck(chains[0], chains[1], spd.Reference(src, mips)); err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.out, 0o755); err != nil {
		return err
	}
	if err := writeLevels(cfg.out, cfg.format, chains[0], cfg.half); err != nil {
		return err
	}
	if cfg.sheet {
		sheet, err := contactSheet(chains[0])
		if err != nil {
			return err
		}
		if err := sheet.Save(filepath.Join(cfg.out, "sheet."+cfg.format)); err != nil {
			return err
		}
	}

	p := message.NewPrinter(language.English)
	p.Printf("%dx%d source, %d levels, %d texels written to %s\n",
		w, h, mips, chainTexels(chains[0]), cfg.out)
	for i, engine := range engines {
		p.Printf("  %-12s %v\n", engine, elapsed[i].Round(time.Microsecond))
	}
	return nil
}

func loadSource(cfg config) (*spd.Image, error) {
	if cfg.input != "" {
		return spd.LoadImage(cfg.input)
	}
	return checkerboard(cfg.width, cfg.height, 8)
}

func generate(ctx context.Context, cfg config, engine spd.Engine, src *spd.Image, mips int) (*spd.MipChain, error) {
	d, err := spd.New(
		spd.WithEngine(engine),
		spd.WithWideGroup(cfg.wide),
		spd.WithFallbackReduction(cfg.fallback),
		spd.WithBackend(cfg.backend),
		spd.WithWorkers(cfg.workers),
		spd.WithValidation(cfg.validate),
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = d.Close() }()

	w, h := src.Bounds()
	if err := d.Resize(w, h, mips); err != nil {
		return nil, err
	}
	return d.Generate(ctx, src)
}
