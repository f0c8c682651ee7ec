package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/hyperjump/kioku/internal/models"
)

func writeFixture(t *testing.T, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestExtract_plain(t *testing.T) {
	e := New()
	path := writeFixture(t, "note.txt", []byte("Hello world\nLine 2"))
	got, typ, err := e.Extract(context.Background(), path, models.TypeText)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if typ != models.TypeText {
		t.Errorf("type = %s", typ)
	}
	if got != "Hello world\nLine 2" {
		t.Errorf("got %q", got)
	}
}

func TestExtract_plainInvalidUTF8(t *testing.T) {
	e := New()
	path := writeFixture(t, "note.md", []byte("hello\x80world"))
	got, _, err := e.Extract(context.Background(), path, models.TypeText)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got != "hello�world" {
		t.Errorf("got %q", got)
	}
}

func TestExtract_autoDetect(t *testing.T) {
	cases := map[string]models.DocumentType{
		"a.txt":  models.TypeText,
		"a.md":   models.TypeText,
		"a.pdf":  models.TypePDF,
		"a.jpg":  models.TypeImage,
		"a.png":  models.TypeImage,
		"a.wav":  models.TypeAudio,
		"a.mp3":  models.TypeAudio,
		"a.xyz":  models.TypeText,
	}
	for name, want := range cases {
		if got := DetectType(name); got != want {
			t.Errorf("DetectType(%q) = %s, want %s", name, got, want)
		}
	}
}

func TestExtract_invalidType(t *testing.T) {
	e := New()
	_, _, err := e.Extract(context.Background(), "x.txt", models.DocumentType("video"))
	if !errors.Is(err, models.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestExtract_missingFile(t *testing.T) {
	e := New()
	_, _, err := e.Extract(context.Background(), filepath.Join(t.TempDir(), "absent.txt"), models.TypeText)
	if !errors.Is(err, models.ErrExtraction) {
		t.Errorf("expected ErrExtraction, got %v", err)
	}
}

func TestExtract_imageWithoutOCR(t *testing.T) {
	e := New()
	_, _, err := e.Extract(context.Background(), "photo.jpg", models.TypeImage)
	if !errors.Is(err, models.ErrExtraction) {
		t.Errorf("expected ErrExtraction without OCR provider, got %v", err)
	}
}

func TestExtract_audioWithoutTranscriber(t *testing.T) {
	e := New()
	_, _, err := e.Extract(context.Background(), "memo.wav", models.TypeAudio)
	if !errors.Is(err, models.ErrExtraction) {
		t.Errorf("expected ErrExtraction without transcriber, got %v", err)
	}
}

type fakeOCR struct{ text string }

func (f *fakeOCR) ExtractText(ctx context.Context, path string) (string, error) {
	return f.text, nil
}

type fakeTranscriber struct{ text string }

func (f *fakeTranscriber) Transcribe(ctx context.Context, path string) (string, error) {
	return f.text, nil
}

func TestExtract_injectedProviders(t *testing.T) {
	e := New(WithOCR(&fakeOCR{text: "ocr text"}), WithTranscriber(&fakeTranscriber{text: "spoken words"}))

	got, typ, err := e.Extract(context.Background(), "photo.png", models.TypeAuto)
	if err != nil {
		t.Fatal(err)
	}
	if typ != models.TypeImage || got != "ocr text" {
		t.Errorf("image: got %q type %s", got, typ)
	}

	got, typ, err = e.Extract(context.Background(), "memo.m4a", models.TypeAuto)
	if err != nil {
		t.Fatal(err)
	}
	if typ != models.TypeAudio || got != "spoken words" {
		t.Errorf("audio: got %q type %s", got, typ)
	}
}

// minimalDocx returns a minimal .docx zip with word/document.xml containing
// the given text in <w:t> tags.
func minimalDocx(text string) []byte {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	fw, _ := w.Create("word/document.xml")
	_, _ = fw.Write([]byte(`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body><w:p><w:r><w:t>` + text + `</w:t></w:r></w:p></w:body></w:document>`))
	_ = w.Close()
	return buf.Bytes()
}

func TestExtract_docx(t *testing.T) {
	e := New()
	path := writeFixture(t, "doc.docx", minimalDocx("Searchable docx content"))
	got, typ, err := e.Extract(context.Background(), path, models.TypeAuto)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if typ != models.TypeText {
		t.Errorf("type = %s", typ)
	}
	if got != "Searchable docx content" {
		t.Errorf("got %q", got)
	}
}

func TestExtract_docxCustomDocumentPath(t *testing.T) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	ct, _ := w.Create("[Content_Types].xml")
	_, _ = ct.Write([]byte(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">
<Override PartName="/word/document2.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>
</Types>`))
	fw, _ := w.Create("word/document2.xml")
	_, _ = fw.Write([]byte(`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body><w:p><w:r><w:t>Content from document2</w:t></w:r></w:p></w:body></w:document>`))
	_ = w.Close()

	e := New()
	path := writeFixture(t, "doc.docx", buf.Bytes())
	got, _, err := e.Extract(context.Background(), path, models.TypeText)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got != "Content from document2" {
		t.Errorf("got %q", got)
	}
}

func TestExtract_excel(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	f.SetCellValue("Sheet1", "A1", "Title")
	f.SetCellValue("Sheet1", "A2", "Value 1")
	f.SetCellValue("Sheet1", "B2", "Value 2")
	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}

	e := New()
	path := writeFixture(t, "sheet.xlsx", buf.Bytes())
	got, _, err := e.Extract(context.Background(), path, models.TypeText)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	for _, want := range []string{"Title", "Value 1", "Value 2"} {
		if !bytes.Contains([]byte(got), []byte(want)) {
			t.Errorf("extracted text missing %q: %q", want, got)
		}
	}
}

func TestExtract_pdfNotAPDF(t *testing.T) {
	e := New()
	path := writeFixture(t, "broken.pdf", []byte("not a pdf"))
	_, _, err := e.Extract(context.Background(), path, models.TypePDF)
	if !errors.Is(err, models.ErrExtraction) {
		t.Errorf("expected ErrExtraction, got %v", err)
	}
}
