package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRawResultAccessors(t *testing.T) {
	raw := RawResult{
		"url":      "https://example.com",
		"score":    1.5,
		"position": 3,
		"stars":    int64(42),
		"tags":     []any{"go", "search", 7},
		"langs":    []string{"en", "de"},
	}

	assert.Equal(t, "https://example.com", raw.String("url"))
	assert.Equal(t, "", raw.String("missing"))
	assert.Equal(t, "", raw.String("score"))

	assert.Equal(t, 1.5, raw.Float("score"))
	assert.Equal(t, 3.0, raw.Float("position"))
	assert.Equal(t, 42.0, raw.Float("stars"))
	assert.Equal(t, 0.0, raw.Float("url"))

	assert.Equal(t, []string{"go", "search"}, raw.Strings("tags"))
	assert.Equal(t, []string{"en", "de"}, raw.Strings("langs"))
	assert.Nil(t, raw.Strings("missing"))
}

func TestResultRecordValidate(t *testing.T) {
	t.Run("valid main", func(t *testing.T) {
		record := ResultRecord{
			Engine: "wikipedia",
			Area:   AreaMain,
			URL:    "https://en.wikipedia.org/wiki/Go",
			Title:  "Go",
		}
		require.NoError(t, record.Validate())
	})

	t.Run("main without url", func(t *testing.T) {
		record := ResultRecord{Engine: "wikipedia", Area: AreaMain, Title: "Go"}
		err := record.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "without url")
	})

	t.Run("missing engine attribution", func(t *testing.T) {
		record := ResultRecord{Area: AreaMain, URL: "https://example.com"}
		assert.Error(t, record.Validate())
	})

	t.Run("answer without content", func(t *testing.T) {
		record := ResultRecord{Engine: "random", Area: AreaAnswer, Answer: "   "}
		assert.Error(t, record.Validate())
	})

	t.Run("suggestion with content", func(t *testing.T) {
		record := ResultRecord{Engine: "wikipedia", Area: AreaSuggestion, Answer: "golang"}
		assert.NoError(t, record.Validate())
	})

	t.Run("infobox without title", func(t *testing.T) {
		record := ResultRecord{Engine: "wikipedia", Area: AreaInfobox, Infobox: &Infobox{}}
		assert.Error(t, record.Validate())
	})

	t.Run("unknown area", func(t *testing.T) {
		record := ResultRecord{Engine: "a", Area: "sidebar", URL: "https://example.com"}
		assert.Error(t, record.Validate())
	})

	t.Run("infobox with title", func(t *testing.T) {
		record := ResultRecord{
			Engine:  "wikipedia",
			Area:    AreaInfobox,
			Infobox: &Infobox{Title: "Go (programming language)"},
		}
		assert.NoError(t, record.Validate())
	})
}
