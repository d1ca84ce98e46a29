package main

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v2"

	"github.com/pyhub-apps/pdfedit-golang/pkg/editor"
	"github.com/pyhub-apps/pdfedit-golang/pkg/pdf"
)

// Script is a YAML list of edits applied in order.
//
//	edits:
//	  - replace: {find: "DRAFT", text: "FINAL"}
//	  - update: {id: p1-i0, patch: {text: "Invoice #2002", color: "#c00000"}}
//	  - delete: p1-i3
//	  - text: {page: 1, x: 72, y: 40, text: "Paid"}
//	  - shape: {page: 1, kind: ellipse, x: 10, y: 10, width: 80, height: 40, stroke: "#ff0000"}
//	  - image: {page: 1, x: 400, y: 20, width: 120, height: 60, file: logo.png}
//	  - qr: {page: 1, x: 500, y: 700, size: 64, content: "https://example.com"}
//	  - undo: true
type Script struct {
	Edits []Edit `yaml:"edits"`
}

// Edit is one step of a Script. Exactly one field is set.
type Edit struct {
	Replace *ReplaceEdit `yaml:"replace"`
	Update  *UpdateEdit  `yaml:"update"`
	Delete  string       `yaml:"delete"`
	Revert  string       `yaml:"revert"`
	Text    *TextEdit    `yaml:"text"`
	Shape   *ShapeEdit   `yaml:"shape"`
	Image   *ImageEdit   `yaml:"image"`
	QR      *QREdit      `yaml:"qr"`
	Undo    bool         `yaml:"undo"`
	Redo    bool         `yaml:"redo"`
}

type ReplaceEdit struct {
	Find string `yaml:"find"`
	Text string `yaml:"text"`
}

type UpdateEdit struct {
	ID    string           `yaml:"id"`
	Patch pdf.TextRunPatch `yaml:"patch"`
}

type TextEdit struct {
	Page int     `yaml:"page"`
	X    float64 `yaml:"x"`
	Y    float64 `yaml:"y"`
	Text string  `yaml:"text"`
	// Patch restyles the new run.
	Patch pdf.TextRunPatch `yaml:"style"`
}

type ShapeEdit struct {
	Page        int           `yaml:"page"`
	Kind        pdf.ShapeKind `yaml:"kind"`
	X           float64       `yaml:"x"`
	Y           float64       `yaml:"y"`
	Width       float64       `yaml:"width"`
	Height      float64       `yaml:"height"`
	Fill        *pdf.Color    `yaml:"fill"`
	Stroke      *pdf.Color    `yaml:"stroke"`
	StrokeWidth float64       `yaml:"stroke_width"`
	Opacity     float64       `yaml:"opacity"`
	Rotation    float64       `yaml:"rotation"`
	ZIndex      int           `yaml:"z"`
}

type ImageEdit struct {
	Page   int     `yaml:"page"`
	X      float64 `yaml:"x"`
	Y      float64 `yaml:"y"`
	Width  float64 `yaml:"width"`
	Height float64 `yaml:"height"`
	// File is read relative to the script; Src is used as is.
	File    string  `yaml:"file"`
	Src     string  `yaml:"src"`
	Opacity float64 `yaml:"opacity"`
	ZIndex  int     `yaml:"z"`
}

type QREdit struct {
	Page       int        `yaml:"page"`
	X          float64    `yaml:"x"`
	Y          float64    `yaml:"y"`
	Size       float64    `yaml:"size"`
	Content    string     `yaml:"content"`
	Foreground pdf.Color  `yaml:"foreground"`
	Background *pdf.Color `yaml:"background"`
	ZIndex     int        `yaml:"z"`
}

func loadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read script: %w", err)
	}
	return parseScript(data)
}

func parseScript(data []byte) (*Script, error) {
	var s Script
	if err := yaml.UnmarshalStrict(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse script: %w", err)
	}
	for i, e := range s.Edits {
		if n := e.count(); n != 1 {
			return nil, fmt.Errorf("edit %d: want exactly one operation, got %d", i+1, n)
		}
	}
	return &s, nil
}

func (e Edit) count() int {
	n := 0
	for _, set := range []bool{
		e.Replace != nil, e.Update != nil, e.Delete != "", e.Revert != "",
		e.Text != nil, e.Shape != nil, e.Image != nil, e.QR != nil, e.Undo, e.Redo,
	} {
		if set {
			n++
		}
	}
	return n
}

// ScriptReport counts what a script changed.
type ScriptReport struct {
	Applied int
	// Ignored lists edits that named an unknown element or had nothing to undo.
	Ignored []int
}

// Apply runs s against eng. baseDir resolves image files.
func (s *Script) Apply(eng *editor.Engine, baseDir string) (ScriptReport, error) {
	var rep ScriptReport
	for i, e := range s.Edits {
		ok, err := e.apply(eng, baseDir)
		if err != nil {
			return rep, fmt.Errorf("edit %d: %w", i+1, err)
		}
		if ok {
			rep.Applied++
		} else {
			rep.Ignored = append(rep.Ignored, i+1)
		}
	}
	return rep, nil
}

func (e Edit) apply(eng *editor.Engine, baseDir string) (bool, error) {
	switch {
	case e.Replace != nil:
		ids, err := eng.Find(e.Replace.Find)
		if err != nil {
			return false, err
		}
		text := e.Replace.Text
		for _, id := range ids {
			eng.UpdateTextRun(id, pdf.TextRunPatch{Text: &text})
		}
		return len(ids) > 0, nil
	case e.Update != nil:
		return eng.UpdateTextRun(e.Update.ID, e.Update.Patch), nil
	case e.Delete != "":
		return eng.DeleteElement(e.Delete), nil
	case e.Revert != "":
		return eng.RevertTextRun(e.Revert), nil
	case e.Text != nil:
		id, err := eng.AddTextRun(e.Text.Page, e.Text.X, e.Text.Y, e.Text.Text)
		if err != nil {
			return false, err
		}
		if e.Text.Patch != (pdf.TextRunPatch{}) {
			eng.UpdateTextRun(id, e.Text.Patch)
		}
		return true, nil
	case e.Shape != nil:
		sh := e.Shape
		_, err := eng.AddShape(pdf.ShapeElement{
			PageNumber: sh.Page, Kind: sh.Kind, X: sh.X, Y: sh.Y, Width: sh.Width, Height: sh.Height,
			Fill: sh.Fill, Stroke: sh.Stroke, StrokeWidth: sh.StrokeWidth,
			Opacity: sh.Opacity, Rotation: sh.Rotation, ZIndex: sh.ZIndex,
		})
		return err == nil, err
	case e.Image != nil:
		im := e.Image
		src, err := im.source(baseDir)
		if err != nil {
			return false, err
		}
		_, err = eng.AddImage(pdf.ImageElement{
			PageNumber: im.Page, X: im.X, Y: im.Y, Width: im.Width, Height: im.Height,
			Src: src, Opacity: im.Opacity, ZIndex: im.ZIndex,
		})
		return err == nil, err
	case e.QR != nil:
		q := e.QR
		_, err := eng.AddQRCode(pdf.QRPlaceholder{
			PageNumber: q.Page, X: q.X, Y: q.Y, Size: q.Size, Content: q.Content,
			Foreground: q.Foreground, Background: q.Background, ZIndex: q.ZIndex,
		})
		return err == nil, err
	case e.Undo:
		return eng.Undo(), nil
	case e.Redo:
		return eng.Redo(), nil
	}
	return false, errors.New("empty edit")
}

func (im *ImageEdit) source(baseDir string) (string, error) {
	if im.Src != "" {
		return im.Src, nil
	}
	if im.File == "" {
		return "", errors.New("image needs file or src")
	}
	path := im.File
	if !filepath.IsAbs(path) {
		path = filepath.Join(baseDir, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read image: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}
