// Package chunker splits raw document text into overlapping word windows.
package chunker

import (
	"fmt"
	"strings"

	"github.com/hyperjump/kioku/internal/models"
)

// Chunk splits text into windows of chunkSize whitespace-delimited words with
// 50% overlap (stride chunkSize/2), each joined by single spaces. The trailing
// partial window is emitted if non-empty. Empty or all-whitespace text yields
// an empty sequence. Same (text, chunkSize) always yields the same sequence.
// chunkSize must be at least 2, otherwise the stride degenerates.
func Chunk(text string, chunkSize int) ([]string, error) {
	if chunkSize <= 1 {
		return nil, fmt.Errorf("%w: chunk size must be greater than 1, got %d", models.ErrInvalidArgument, chunkSize)
	}
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil, nil
	}
	stride := chunkSize / 2
	chunks := make([]string, 0, (len(words)+stride-1)/stride)
	for i := 0; i < len(words); i += stride {
		end := i + chunkSize
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, strings.Join(words[i:end], " "))
	}
	return chunks, nil
}
