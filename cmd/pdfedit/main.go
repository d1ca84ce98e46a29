// Command pdfedit lists, searches, renders and edits the text of PDF files.
//
// Usage:
//
//	pdfedit [-config file] [-log-level level] <command> [flags] <file.pdf>
//
// Commands:
//
//	extract   list the editable text runs
//	text      print the text of a page
//	find      list the runs containing a string
//	render    write every page as a PNG
//	apply     run a YAML edit script and write the edited PDF
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/pyhub-apps/pdfedit-golang/pkg/editor"
	"github.com/pyhub-apps/pdfedit-golang/pkg/extract"
	"github.com/pyhub-apps/pdfedit-golang/pkg/observability"
	"github.com/pyhub-apps/pdfedit-golang/pkg/pdf"
	"github.com/pyhub-apps/pdfedit-golang/pkg/raster"
)

const usage = `Usage: pdfedit [-config file] [-log-level level] <command> [flags] <file.pdf>

Commands:
  extract   list the editable text runs
  text      print the text of a page
  find      list the runs containing a string
  render    write every page as a PNG
  apply     run a YAML edit script and write the edited PDF
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "pdfedit:", err)
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	global := flag.NewFlagSet("pdfedit", flag.ContinueOnError)
	global.SetOutput(stderr)
	global.Usage = func() { fmt.Fprint(stderr, usage) }
	configPath := global.String("config", "", "YAML configuration file")
	logLevel := global.String("log-level", "", "debug, info, warn or error")
	if err := global.Parse(args); err != nil {
		return err
	}
	if global.NArg() == 0 {
		global.Usage()
		return flag.ErrHelp
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	level := cfg.LogLevel
	if *logLevel != "" {
		level = *logLevel
	}
	if level == "" {
		level = "warn"
	}
	logger := observability.New(stderr, observability.ParseLevel(level))
	opts, err := cfg.Options(logger)
	if err != nil {
		return err
	}

	cmd, rest := global.Arg(0), global.Args()[1:]
	switch cmd {
	case "extract":
		return runExtract(ctx, rest, opts, stdout, stderr)
	case "text":
		return runText(ctx, rest, opts, stdout, stderr)
	case "find":
		return runFind(ctx, rest, opts, stdout, stderr)
	case "render":
		return runRender(ctx, rest, opts, stdout, stderr)
	case "apply":
		return runApply(ctx, rest, opts, stdout, stderr)
	}
	global.Usage()
	return fmt.Errorf("unknown command %q", cmd)
}

// open loads the single positional argument of fs into a new engine.
func open(ctx context.Context, fs *flag.FlagSet, opts []editor.Option) (*editor.Engine, error) {
	if fs.NArg() != 1 {
		fs.Usage()
		return nil, flag.ErrHelp
	}
	path := fs.Arg(0)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read PDF: %w", err)
	}
	eng, err := editor.New(opts...)
	if err != nil {
		return nil, err
	}
	if _, err := eng.LoadPDF(ctx, data, "application/pdf"); err != nil {
		return nil, err
	}
	return eng, nil
}

func newFlagSet(name, args string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: pdfedit %s [flags] %s\n", name, args)
		fs.PrintDefaults()
	}
	return fs
}

func granularityFlag(fs *flag.FlagSet) *bool {
	return fs.Bool("words", false, "split runs into words")
}

func withGranularity(opts []editor.Option, words bool) []editor.Option {
	if !words {
		return opts
	}
	return append(opts, editor.WithGranularity(extract.Word))
}

func runExtract(ctx context.Context, args []string, opts []editor.Option, stdout, stderr io.Writer) error {
	fs := newFlagSet("extract", "<file.pdf>", stderr)
	words := granularityFlag(fs)
	page := fs.Int("page", 0, "only list runs of this page")
	if err := fs.Parse(args); err != nil {
		return err
	}
	eng, err := open(ctx, fs, withGranularity(opts, *words))
	if err != nil {
		return err
	}
	for _, w := range eng.Warnings() {
		fmt.Fprintln(stderr, "warning:", w)
	}
	var runs []pdf.TextRun
	for _, r := range eng.TextRuns() {
		if *page == 0 || r.PageNumber == *page {
			runs = append(runs, r)
		}
	}
	return writeRuns(stdout, runs)
}

func runText(ctx context.Context, args []string, opts []editor.Option, stdout, stderr io.Writer) error {
	fs := newFlagSet("text", "<file.pdf>", stderr)
	page := fs.Int("page", 0, "page to print; 0 prints every page")
	if err := fs.Parse(args); err != nil {
		return err
	}
	eng, err := open(ctx, fs, withGranularity(opts, true))
	if err != nil {
		return err
	}
	for _, g := range eng.PDFPages() {
		if *page != 0 && g.PageNumber != *page {
			continue
		}
		text, err := eng.PageText(g.PageNumber)
		if err != nil {
			return err
		}
		if *page == 0 {
			fmt.Fprintf(stdout, "=== Page %d ===\n", g.PageNumber)
		}
		fmt.Fprintln(stdout, text)
	}
	return nil
}

func runFind(ctx context.Context, args []string, opts []editor.Option, stdout, stderr io.Writer) error {
	fs := newFlagSet("find", "<file.pdf>", stderr)
	words := granularityFlag(fs)
	query := fs.String("q", "", "text to search for")
	if err := fs.Parse(args); err != nil {
		return err
	}
	eng, err := open(ctx, fs, withGranularity(opts, *words))
	if err != nil {
		return err
	}
	ids, err := eng.Find(*query)
	if err != nil {
		return err
	}
	runs := make([]pdf.TextRun, 0, len(ids))
	for _, id := range ids {
		if r, ok := eng.TextRun(id); ok {
			runs = append(runs, r)
		}
	}
	return writeRuns(stdout, runs)
}

func runRender(ctx context.Context, args []string, opts []editor.Option, stdout, stderr io.Writer) error {
	fs := newFlagSet("render", "<file.pdf>", stderr)
	outDir := fs.String("o", ".", "output directory")
	if err := fs.Parse(args); err != nil {
		return err
	}
	eng, err := open(ctx, fs, opts)
	if err != nil {
		return err
	}
	for _, w := range eng.Warnings() {
		fmt.Fprintln(stderr, "warning:", w)
	}
	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		return err
	}
	base := filepath.Base(fs.Arg(0))
	base = base[:len(base)-len(filepath.Ext(base))]
	for _, g := range eng.PDFPages() {
		png, err := raster.DecodeDataURL(g.BackgroundImage)
		if err != nil {
			return fmt.Errorf("page %d: %w", g.PageNumber, err)
		}
		path := filepath.Join(*outDir, fmt.Sprintf("%s-%d.png", base, g.PageNumber))
		if err := os.WriteFile(path, png, 0o644); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "%s  %.0fx%.0f  scale %.2f\n", path, g.Width, g.Height, g.Scale)
	}
	return nil
}

func runApply(ctx context.Context, args []string, opts []editor.Option, stdout, stderr io.Writer) error {
	fs := newFlagSet("apply", "-script edits.yaml -o out.pdf <file.pdf>", stderr)
	words := granularityFlag(fs)
	scriptPath := fs.String("script", "", "YAML edit script")
	out := fs.String("o", "", "output PDF")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *scriptPath == "" || *out == "" {
		fs.Usage()
		return flag.ErrHelp
	}
	script, err := loadScript(*scriptPath)
	if err != nil {
		return err
	}
	eng, err := open(ctx, fs, withGranularity(opts, *words))
	if err != nil {
		return err
	}
	rep, err := script.Apply(eng, filepath.Dir(*scriptPath))
	if err != nil {
		return err
	}
	for _, n := range rep.Ignored {
		fmt.Fprintf(stderr, "warning: edit %d changed nothing\n", n)
	}

	res, err := eng.Export(ctx)
	if err != nil {
		return err
	}
	if err := os.WriteFile(*out, res.Bytes, 0o644); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "%s: %d edits applied, %d elements drawn, %d skipped\n",
		*out, rep.Applied, res.Drawn, res.Skipped)
	return nil
}
