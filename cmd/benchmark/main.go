package main

import (
	"context"
	"fmt"
	"os"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/pyhub-apps/pdfedit-golang/pkg/editor"
	"github.com/pyhub-apps/pdfedit-golang/pkg/extract"
	"github.com/pyhub-apps/pdfedit-golang/pkg/pdf"
	"github.com/pyhub-apps/pdfedit-golang/pkg/raster"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: benchmark <pdf-file>")
		os.Exit(1)
	}

	pdfPath := os.Args[1]
	data, err := os.ReadFile(pdfPath)
	if err != nil {
		log.Fatalf("Failed to read PDF: %v", err)
	}
	ctx := context.Background()

	renderer, err := raster.New()
	if err != nil {
		log.Fatalf("Failed to configure renderer: %v", err)
	}

	// Warm-up run
	if _, err := renderer.Render(ctx, data); err != nil {
		log.Fatalf("Failed to render PDF: %v", err)
	}

	fmt.Printf("=== pdfedit Benchmark ===\n")
	fmt.Printf("File: %s (%d bytes)\n", pdfPath, len(data))

	// Benchmark rasterization
	start := time.Now()
	rendered, err := renderer.Render(ctx, data)
	if err != nil {
		log.Fatalf("Failed to render PDF: %v", err)
	}
	renderTime := time.Since(start)
	fmt.Printf("Pages: %d (degraded: %v, warnings: %d)\n", len(rendered.Pages), rendered.Degraded, len(rendered.Warnings))
	fmt.Printf("Render time: %v\n", renderTime)

	// Benchmark text extraction per backend
	for _, b := range extract.DefaultBackends() {
		start = time.Now()
		pages, err := extract.New(extract.WithBackends(b)).Extract(ctx, data)
		elapsed := time.Since(start)
		if err != nil {
			fmt.Printf("Extraction [%s]: failed after %v: %v\n", b.Name, elapsed, err)
			continue
		}
		runs, chars := 0, 0
		for _, p := range pages {
			runs += len(p.Runs)
			for _, r := range p.Runs {
				chars += len([]rune(r.Text))
			}
		}
		fmt.Printf("Extraction [%s]: %v, %d runs, %.0f chars/sec\n", b.Name, elapsed, runs, float64(chars)/elapsed.Seconds())
	}

	// Benchmark a full edit session: load, change every run, export
	eng, err := editor.New()
	if err != nil {
		log.Fatal(err)
	}
	start = time.Now()
	if _, err := eng.LoadPDF(ctx, data, "application/pdf"); err != nil {
		log.Fatalf("Failed to load PDF: %v", err)
	}
	loadTime := time.Since(start)

	start = time.Now()
	runs := eng.TextRuns()
	for _, r := range runs {
		text := r.Text + "*"
		eng.UpdateTextRun(r.ID, pdf.TextRunPatch{Text: &text})
	}
	editTime := time.Since(start)

	start = time.Now()
	res, err := eng.Export(ctx)
	if err != nil {
		log.Fatalf("Failed to export: %v", err)
	}
	exportTime := time.Since(start)

	fmt.Printf("Load time: %v\n", loadTime)
	fmt.Printf("Edit time: %v (%d runs, %d snapshots kept)\n", editTime, len(runs), eng.HistoryLen())
	fmt.Printf("Export time: %v (%d drawn, %d skipped, %d bytes)\n", exportTime, res.Drawn, res.Skipped, len(res.Bytes))

	// Summary
	totalTime := loadTime + editTime + exportTime
	fmt.Printf("\n=== Summary ===\n")
	fmt.Printf("Total session time: %v\n", totalTime)
	fmt.Printf("Pages/sec: %.2f\n", float64(len(rendered.Pages))/totalTime.Seconds())
}
