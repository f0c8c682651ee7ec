package extract

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/hyperjump/kioku/internal/models"
)

const docxMainContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"

// textRunTag matches <w:t> runs with or without attributes, e.g.
// <w:t xml:space="preserve">.
var textRunTag = regexp.MustCompile(`<w:t[^>]*>([^<]*)</w:t>`)

// mainPartOverride finds the main document part in [Content_Types].xml; the
// two variants cover either attribute order.
var mainPartOverride = []*regexp.Regexp{
	regexp.MustCompile(`<Override[^>]+PartName="([^"]+)"[^>]+ContentType="` + regexp.QuoteMeta(docxMainContentType) + `"`),
	regexp.MustCompile(`<Override[^>]+ContentType="` + regexp.QuoteMeta(docxMainContentType) + `"[^>]+PartName="([^"]+)"`),
}

// extractDOCX extracts the text runs from a .docx archive. Runs are joined
// with spaces so content stays searchable regardless of paragraph or run
// attributes. lu4p/cat handles ODT and RTF but its DOCX paragraph regex
// fails on attributed <w:p> elements, so DOCX is decoded here.
func extractDOCX(content []byte) (string, error) {
	archive, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("%w: docx is not a zip archive: %v", models.ErrExtraction, err)
	}

	docPath := mainDocumentPath(archive)
	docXML, err := readArchiveFile(archive, docPath)
	if err != nil {
		return "", fmt.Errorf("%w: docx: %v", models.ErrExtraction, err)
	}

	runs := textRunTag.FindAllStringSubmatch(string(docXML), -1)
	parts := make([]string, 0, len(runs))
	for _, run := range runs {
		parts = append(parts, strings.TrimSpace(run[1]))
	}
	return strings.TrimSpace(strings.Join(parts, " ")), nil
}

// mainDocumentPath resolves the document body part from [Content_Types].xml,
// falling back to the conventional word/document.xml.
func mainDocumentPath(archive *zip.Reader) string {
	types, err := readArchiveFile(archive, "[Content_Types].xml")
	if err == nil {
		for _, re := range mainPartOverride {
			if m := re.FindSubmatch(types); len(m) > 1 {
				return strings.TrimPrefix(string(m[1]), "/")
			}
		}
	}
	return "word/document.xml"
}

func readArchiveFile(archive *zip.Reader, name string) ([]byte, error) {
	for _, f := range archive.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %v", name, err)
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err != nil {
			return nil, fmt.Errorf("read %s: %v", name, err)
		}
		return data, nil
	}
	return nil, fmt.Errorf("%s not found in archive", name)
}
