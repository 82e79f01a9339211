// Command typeforgec drives the Type Manager end to end: it loads class
// files from a directory, registers a set of root classes, scans the
// hierarchy, synthesizes the dispatch routines, and emits the linear-memory
// metadata image plus the four dispatch routines as WebAssembly text.
//
// Flag-based wiring follows cmd/malphas/main.go's own driver,
// generalized from a single-file
// compile to the Type Manager's multi-class closure-over-roots model.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/cfbc-wasm/typeforge/internal/classfile"
	"github.com/cfbc-wasm/typeforge/internal/fnmgr"
	"github.com/cfbc-wasm/typeforge/internal/strpool"
	"github.com/cfbc-wasm/typeforge/internal/typemgr"
	"github.com/cfbc-wasm/typeforge/internal/typemgr/dispatch"
	"github.com/cfbc-wasm/typeforge/internal/typemgr/emit"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: typeforgec [flags] <root-class> [<root-class>...]\n")
		fmt.Fprintf(os.Stderr, "\nFlags:\n")
		flag.PrintDefaults()
	}

	dir := flag.String("dir", ".", "directory of <name>.cfbc.json class files")
	out := flag.String("o", "typeforge.bin", "output path for the data image")
	configPath := flag.String("config", "", "optional typeforge.yaml sidecar")
	gcArrays := flag.Bool("gc-arrays", true, "use GC-backed array representation")
	verbose := flag.Bool("v", false, "verbose logging")
	flag.Parse()

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cfg, err := loadConfig(*configPath)
	if err != nil {
		logger.Error("reading config", "path", *configPath, "err", err)
		os.Exit(1)
	}

	setFlags := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = true })

	classDir := *dir
	if cfg.ClassDir != "" && !setFlags["dir"] {
		classDir = cfg.ClassDir
	}
	outputPath := *out
	if cfg.Output != "" && !setFlags["o"] {
		outputPath = cfg.Output
	}
	useGCArrays := *gcArrays
	if cfg.GCArrays != nil && !setFlags["gc-arrays"] {
		useGCArrays = *cfg.GCArrays
	}

	roots := flag.Args()
	if len(roots) == 0 {
		roots = cfg.RootClasses
	}
	if len(roots) == 0 {
		flag.Usage()
		os.Exit(1)
	}

	if err := run(classDir, outputPath, useGCArrays, roots, logger); err != nil {
		logger.Error("build failed", "err", err)
		os.Exit(1)
	}
}

func run(classDir, outputPath string, gcArrays bool, roots []string, logger *slog.Logger) error {
	loader := classfile.NewDirLoader(classDir)
	fns := fnmgr.New()
	strs := strpool.New()

	registry := typemgr.New(loader, fns, strs,
		typemgr.WithGCArrays(gcArrays),
		typemgr.WithLogf(func(format string, args ...any) {
			logger.Debug(fmt.Sprintf(format, args...))
		}),
	)

	for _, name := range roots {
		if _, err := registry.ValueOf(name); err != nil {
			return fmt.Errorf("registering root class %s: %w", name, err)
		}
	}

	synth := dispatch.New(fns)
	routines := synth.Synthesize()

	scanner := typemgr.NewScanner(registry)
	if err := scanner.ScanTypeHierarchy(); err != nil {
		return fmt.Errorf("scanning type hierarchy: %w", err)
	}

	emitter := emit.New(registry, fns, strs)
	image, err := emitter.Emit()
	if err != nil {
		return fmt.Errorf("emitting metadata: %w", err)
	}

	if err := os.WriteFile(outputPath, image, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", outputPath, err)
	}

	watPath := strings.TrimSuffix(outputPath, ".bin") + ".dispatch.wat"
	var wat strings.Builder
	for _, r := range routines {
		wat.WriteString(r.WAT)
		wat.WriteByte('\n')
	}
	wat.WriteString(emitter.TypeTableAccessor().WAT)
	wat.WriteByte('\n')
	if err := os.WriteFile(watPath, []byte(wat.String()), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", watPath, err)
	}

	logger.Info("build complete",
		"classes", registry.Size(),
		"imageBytes", len(image),
		"typeTableOffset", emitter.TypeTableOffset(),
		"output", outputPath,
		"dispatch", watPath,
	)
	return nil
}
