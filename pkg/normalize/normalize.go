// Package normalize converts engine-specific raw results into canonical
// result records. It is the only component that interprets the shape of a
// RawResult; everything downstream works with ResultRecord values.
package normalize

import (
	"fmt"
	"strings"
	"time"

	"github.com/metisearch/metis/pkg/core"
)

// Conventional RawResult keys engine adapters populate.
const (
	KeyArea          = "area"
	KeyURL           = "url"
	KeyTitle         = "title"
	KeyContent       = "content"
	KeyThumbnail     = "thumbnail"
	KeyPublishedAt   = "published_at"
	KeyScore         = "score"
	KeyAnswer        = "answer"
	KeyInfoboxTitle  = "infobox_title"
	KeyImageURL      = "img_src"
	KeyAttributes    = "attributes"
	KeyURLs          = "urls"
	KeyRelatedTopics = "related_topics"
)

// Record converts one raw result into a canonical record. position is the
// 1-based rank the engine returned the result at. When the engine supplies
// no score, a reciprocal-rank score is derived from the position so later
// merging always has something to combine.
func Record(engine string, position int, raw core.RawResult) (core.ResultRecord, error) {
	area := core.Area(raw.String(KeyArea))
	if area == "" {
		area = core.AreaMain
	}

	record := core.ResultRecord{
		Engine:   engine,
		Area:     area,
		Score:    raw.Float(KeyScore),
		Position: position,
	}
	if record.Score == 0 && position > 0 {
		record.Score = 1.0 / float64(position)
	}

	switch area {
	case core.AreaMain:
		record.URL = strings.TrimSpace(raw.String(KeyURL))
		record.Title = strings.TrimSpace(raw.String(KeyTitle))
		record.Content = strings.TrimSpace(raw.String(KeyContent))
		record.Thumbnail = strings.TrimSpace(raw.String(KeyThumbnail))
		record.PublishedAt = parseTime(raw[KeyPublishedAt])
	case core.AreaAnswer, core.AreaSuggestion, core.AreaCorrection:
		record.Answer = strings.TrimSpace(raw.String(KeyAnswer))
	case core.AreaInfobox:
		infobox, err := parseInfobox(raw)
		if err != nil {
			return core.ResultRecord{}, err
		}
		record.Infobox = infobox
	default:
		return core.ResultRecord{}, fmt.Errorf("unknown result area %q from engine %s", area, engine)
	}

	if err := record.Validate(); err != nil {
		return core.ResultRecord{}, err
	}
	return record, nil
}

// Records converts a whole raw batch, skipping records that fail validation.
// The number of skipped records is returned for logging.
func Records(engine string, raws []core.RawResult) ([]core.ResultRecord, int) {
	records := make([]core.ResultRecord, 0, len(raws))
	skipped := 0
	for i, raw := range raws {
		record, err := Record(engine, i+1, raw)
		if err != nil {
			skipped++
			continue
		}
		records = append(records, record)
	}
	return records, skipped
}

func parseTime(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case string:
		if parsed, err := time.Parse(time.RFC3339, t); err == nil {
			return parsed
		}
	}
	return time.Time{}
}

func parseInfobox(raw core.RawResult) (*core.Infobox, error) {
	title := strings.TrimSpace(raw.String(KeyInfoboxTitle))
	if title == "" {
		title = strings.TrimSpace(raw.String(KeyTitle))
	}
	if title == "" {
		return nil, fmt.Errorf("infobox without title")
	}

	infobox := &core.Infobox{
		Title:         title,
		Content:       strings.TrimSpace(raw.String(KeyContent)),
		ImageURL:      strings.TrimSpace(raw.String(KeyImageURL)),
		RelatedTopics: raw.Strings(KeyRelatedTopics),
	}

	switch attrs := raw[KeyAttributes].(type) {
	case []core.InfoboxAttribute:
		infobox.Attributes = attrs
	case []any:
		for _, a := range attrs {
			if m, ok := a.(map[string]any); ok {
				attr := core.InfoboxAttribute{}
				if label, ok := m["label"].(string); ok {
					attr.Label = label
				}
				if value, ok := m["value"].(string); ok {
					attr.Value = value
				}
				if attr.Label != "" {
					infobox.Attributes = append(infobox.Attributes, attr)
				}
			}
		}
	}

	switch urls := raw[KeyURLs].(type) {
	case []core.InfoboxURL:
		infobox.URLs = urls
	case []any:
		for _, u := range urls {
			if m, ok := u.(map[string]any); ok {
				link := core.InfoboxURL{}
				if t, ok := m["title"].(string); ok {
					link.Title = t
				}
				if addr, ok := m["url"].(string); ok {
					link.URL = addr
				}
				if link.URL != "" {
					infobox.URLs = append(infobox.URLs, link)
				}
			}
		}
	}

	return infobox, nil
}
