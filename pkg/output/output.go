// Package output renders a frozen result container as JSON, CSV or RSS.
// The JSON schema is stable; API clients depend on its field names.
package output

import (
	"encoding/csv"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/metisearch/metis/pkg/results"
	"github.com/metisearch/metis/pkg/version"
)

type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatRSS  Format = "rss"
)

// ParseFormat validates a user-supplied format name.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatJSON:
		return FormatJSON, nil
	case FormatCSV:
		return FormatCSV, nil
	case FormatRSS:
		return FormatRSS, nil
	}
	return FormatJSON, fmt.Errorf("unknown output format %q", s)
}

// ContentType returns the MIME type the format is served as.
func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv; charset=utf-8"
	case FormatRSS:
		return "application/rss+xml; charset=utf-8"
	default:
		return "application/json; charset=utf-8"
	}
}

// Write renders the frozen container in the given format.
func Write(w io.Writer, format Format, frozen *results.Frozen) error {
	switch format {
	case FormatCSV:
		return writeCSV(w, frozen)
	case FormatRSS:
		return writeRSS(w, frozen)
	default:
		return writeJSON(w, frozen)
	}
}

// jsonDocument is the stable top-level JSON schema.
type jsonDocument struct {
	Query           string `json:"query"`
	NumberOfResults int    `json:"number_of_results"`
	*results.Frozen
}

func writeJSON(w io.Writer, frozen *results.Frozen) error {
	doc := jsonDocument{
		Query:           frozen.Query.Terms,
		NumberOfResults: len(frozen.Main),
		Frozen:          frozen,
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encoding json output: %w", err)
	}
	return nil
}

func writeCSV(w io.Writer, frozen *results.Frozen) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"url", "title", "content", "engines", "score", "position"}); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}
	for _, r := range frozen.Main {
		row := []string{
			r.URL,
			r.Title,
			r.Content,
			strings.Join(r.Engines, "|"),
			strconv.FormatFloat(r.Score, 'f', -1, 64),
			strconv.Itoa(r.Position),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

type rssFeed struct {
	XMLName xml.Name   `xml:"rss"`
	Version string     `xml:"version,attr"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Title       string    `xml:"title"`
	Description string    `xml:"description"`
	Generator   string    `xml:"generator"`
	Items       []rssItem `xml:"item"`
}

type rssItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	Description string `xml:"description,omitempty"`
	PubDate     string `xml:"pubDate,omitempty"`
	GUID        string `xml:"guid"`
}

func writeRSS(w io.Writer, frozen *results.Frozen) error {
	items := make([]rssItem, 0, len(frozen.Main))
	for _, r := range frozen.Main {
		item := rssItem{
			Title:       r.Title,
			Link:        r.URL,
			Description: r.Content,
			GUID:        r.URL,
		}
		if !r.PublishedAt.IsZero() {
			item.PubDate = r.PublishedAt.Format(time.RFC1123Z)
		}
		items = append(items, item)
	}

	feed := rssFeed{
		Version: "2.0",
		Channel: rssChannel{
			Title:       fmt.Sprintf("Search results for %q", frozen.Query.Terms),
			Description: fmt.Sprintf("%d aggregated results", len(frozen.Main)),
			Generator:   "metis/" + version.String,
			Items:       items,
		},
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return fmt.Errorf("writing xml header: %w", err)
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(feed); err != nil {
		return fmt.Errorf("encoding rss output: %w", err)
	}
	if _, err := io.WriteString(w, "\n"); err != nil {
		return err
	}
	return nil
}
