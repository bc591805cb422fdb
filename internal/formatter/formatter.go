// package formatter renders tracklists to various formats (CSV, JSON, Markdown, plain text)
package formatter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/desertthunder/acura/internal/models"
	"github.com/desertthunder/acura/internal/shared"
)

// Format names an output format.
type Format string

const (
	Text     Format = "text"
	JSON     Format = "json"
	CSV      Format = "csv"
	Markdown Format = "markdown"
)

// ParseFormat validates a format name, accepting "md" for Markdown.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case Text, JSON, CSV, Markdown:
		return f, nil
	case "md":
		return Markdown, nil
	case "":
		return Text, nil
	default:
		return "", fmt.Errorf("%w: unknown format %q (use text, json, csv or markdown)", shared.ErrInvalidFlag, s)
	}
}

// Tracklist is a subscriber's playlist for one day.
type Tracklist struct {
	License string                  `json:"license"`
	Day     string                  `json:"day"`
	Entries []models.TracklistEntry `json:"tracks"`
}

// ExportToCSV converts a tracklist to CSV with columns: Suggestion, Added, Title, Artist, Duration, URI
func ExportToCSV(list Tracklist) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"Suggestion", "Added", "Title", "Artist", "Duration", "URI"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, e := range list.Entries {
		record := []string{
			strconv.FormatInt(e.SuggestionID, 10),
			e.AddedAt.UTC().Format("15:04:05"),
			e.Track.Title,
			e.Track.Artist,
			strconv.Itoa(e.Track.Duration),
			e.Track.URI,
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ExportToJSON converts a tracklist to indented JSON.
func ExportToJSON(list Tracklist) ([]byte, error) {
	if list.Entries == nil {
		list.Entries = []models.TracklistEntry{}
	}
	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode JSON: %w", err)
	}
	return append(data, '\n'), nil
}

// ExportToMarkdown converts a tracklist to a Markdown list of video links.
func ExportToMarkdown(list Tracklist) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "# Tracklist for %s\n\n", list.Day)
	fmt.Fprintf(&buf, "**Tracks**: %d\n\n", len(list.Entries))

	for i, e := range list.Entries {
		fmt.Fprintf(&buf, "%d. [%s - %s](%s) [%s]\n", i+1, e.Track.Artist, e.Track.Title, e.Track.URI, FormatDuration(e.Track.Duration))
	}

	return buf.Bytes(), nil
}

// ExportToText converts a tracklist to plain text.
func ExportToText(list Tracklist) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "Tracklist: %s\n", list.Day)
	fmt.Fprintf(&buf, "Tracks: %d\n\n", len(list.Entries))

	for i, e := range list.Entries {
		fmt.Fprintf(&buf, "%d. %s - %s [%s]\n   %s\n", i+1, e.Track.Artist, e.Track.Title, FormatDuration(e.Track.Duration), e.Track.URI)
	}

	return buf.Bytes(), nil
}

// Render converts a tracklist to the requested format.
func Render(list Tracklist, format Format) ([]byte, error) {
	switch format {
	case JSON:
		return ExportToJSON(list)
	case CSV:
		return ExportToCSV(list)
	case Markdown:
		return ExportToMarkdown(list)
	case Text, "":
		return ExportToText(list)
	default:
		return nil, fmt.Errorf("%w: unknown format %q", shared.ErrInvalidFlag, format)
	}
}

// Write renders the tracklist to w.
func Write(w io.Writer, list Tracklist, format Format) error {
	data, err := Render(list, format)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

// WriteExport renders the tracklist to a file.
//
// Defaults to tracklist_{day}.{ext} as the filename.
func WriteExport(list Tracklist, format Format, path string) (string, error) {
	if path == "" {
		path = fmt.Sprintf("tracklist_%s.%s", list.Day, extension(format))
	}

	data, err := Render(list, format)
	if err != nil {
		return "", err
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	return path, nil
}

func extension(f Format) string {
	switch f {
	case JSON:
		return "json"
	case CSV:
		return "csv"
	case Markdown:
		return "md"
	default:
		return "txt"
	}
}

// FormatDuration renders seconds as m:ss, or h:mm:ss past an hour.
func FormatDuration(seconds int) string {
	if seconds <= 0 {
		return "0:00"
	}
	h, m, s := seconds/3600, (seconds%3600)/60, seconds%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
