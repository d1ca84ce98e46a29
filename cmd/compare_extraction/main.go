package main

import (
	"context"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/pyhub-apps/pdfedit-golang/pkg/extract"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: compare_extraction <pdf-file> [page]")
		os.Exit(1)
	}

	pdfPath := os.Args[1]
	page := 1
	if len(os.Args) > 2 {
		if _, err := fmt.Sscan(os.Args[2], &page); err != nil {
			log.Fatalf("Invalid page number: %v", err)
		}
	}
	data, err := os.ReadFile(pdfPath)
	if err != nil {
		log.Fatalf("Failed to read PDF: %v", err)
	}

	// Every backend alone, at scale 1 so that positions are comparable
	for _, b := range extract.DefaultBackends() {
		fmt.Printf("=== %s ===\n", b.Name)
		pages, err := extract.New(extract.WithScale(1), extract.WithBackends(b)).Extract(context.Background(), data)
		if err != nil {
			fmt.Printf("  failed: %v\n\n", err)
			continue
		}
		if page < 1 || page > len(pages) {
			fmt.Printf("  page %d out of range, document has %d pages\n\n", page, len(pages))
			continue
		}
		p := pages[page-1]
		if p.Err != nil {
			fmt.Printf("  page %d failed: %v\n\n", page, p.Err)
			continue
		}
		fmt.Printf("  Page %d: %.2f x %.2f, %d runs\n", p.Number, p.Width, p.Height, len(p.Runs))
		for i, r := range p.Runs {
			if i >= 10 {
				fmt.Printf("  ... %d more\n", len(p.Runs)-i)
				break
			}
			fmt.Printf("  %2d. %q\n", i+1, r.Text)
			fmt.Printf("      Position: x=%.2f, y=%.2f, w=%.2f, h=%.2f\n", r.X, r.Y, r.Width, r.Height)
			fmt.Printf("      Font: %s %s %s, Size: %.2f\n", r.FontName, r.FontWeight, r.FontStyle, r.FontSize)
		}
		fmt.Println()
	}

	fmt.Println("Notes:")
	fmt.Println("1. Y coordinates are top-down editor space; the PDF origin is bottom-left")
	fmt.Println("2. Glyph-stream backends group characters by baseline and font continuity")
	fmt.Println("3. Only the content stream walker reports colors and hidden-text fills")
}
