package extract

import (
	"fmt"

	"github.com/lu4p/cat"

	"github.com/hyperjump/kioku/internal/models"
)

// extractOffice extracts text from ODT and RTF files via lu4p/cat,
// which handles both container formats from the path directly.
func extractOffice(path string) (string, error) {
	text, err := cat.File(path)
	if err != nil {
		return "", fmt.Errorf("%w: office document %s: %v", models.ErrExtraction, path, err)
	}
	return text, nil
}
