// Package cli provides output formatting for the Kioku command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/hyperjump/kioku/internal/models"
	"github.com/hyperjump/kioku/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// WriteQueryResults writes a query response to w in the given format.
// Use OutputJSON for parseable output consumable by other apps.
func WriteQueryResults(w io.Writer, response *models.QueryResponse, format OutputFormat) error {
	if format == OutputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(response)
	}
	writeQueryResultsText(w, response)
	return nil
}

func writeQueryResultsText(w io.Writer, response *models.QueryResponse) {
	if response.IndexEmpty {
		fmt.Fprintln(w, "\nNo documents indexed yet. Run `kioku index <file>` first.")
		return
	}
	fmt.Fprintf(w, "\nFound %d results in %dms\n\n", response.Total, response.QueryTime)
	for _, result := range response.Results {
		fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
		fmt.Fprintf(w, "Rank: %d | Score: %.4f\n", result.Rank, result.Score)
		fmt.Fprintf(w, "Source: %s (chunk %d)\n", result.Source, result.ChunkIndex)
		fmt.Fprintf(w, "Document: %s\n", result.DocumentID)
		fmt.Fprintf(w, "\n%s\n\n", utils.Truncate(result.ChunkText, 200))
	}
}

// WriteDocuments writes document records to w in the given format.
func WriteDocuments(w io.Writer, docs []*models.Document, format OutputFormat) error {
	if format == OutputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(docs)
	}
	if len(docs) == 0 {
		fmt.Fprintln(w, "No documents indexed.")
		return nil
	}
	for _, doc := range docs {
		fmt.Fprintf(w, "%s  %-5s  %4d chunks  %s\n",
			doc.ID, doc.Type, doc.ChunkCount, doc.Source)
	}
	return nil
}

// WriteStats writes corpus statistics to w in the given format.
func WriteStats(w io.Writer, stats *models.Stats, format OutputFormat) error {
	if format == OutputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	}
	fmt.Fprintf(w, "Documents: %d\n", stats.TotalDocuments)
	fmt.Fprintf(w, "Chunks:    %d\n", stats.TotalChunks)
	if len(stats.ByType) > 0 {
		fmt.Fprintln(w, "By type:")
		for _, typ := range []string{"text", "pdf", "image", "audio"} {
			if n, ok := stats.ByType[typ]; ok {
				fmt.Fprintf(w, "  %-6s %d\n", typ, n)
			}
		}
	}
	return nil
}

// PrintQueryResults prints a query response to stdout in text format.
func PrintQueryResults(response *models.QueryResponse) {
	_ = WriteQueryResults(os.Stdout, response, OutputText)
}
