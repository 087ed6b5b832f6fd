package plugins

import (
	"github.com/metisearch/metis/pkg/core"
	"github.com/metisearch/metis/pkg/normalize"
)

// TrackerCleaner strips tracking query parameters from main result URLs.
// Deduplication already ignores these parameters, so cleaned and uncleaned
// variants of the same link land in one entry; this hook makes sure the URL
// that survives into the output is the clean one.
type TrackerCleaner struct {
	// ExtraParams extends the builtin tracking parameter denylist.
	ExtraParams []string
}

func (t *TrackerCleaner) Name() string { return "tracker_cleaner" }

func (t *TrackerCleaner) OnResult(record core.ResultRecord) (core.ResultRecord, bool) {
	if record.Area != core.AreaMain || record.URL == "" {
		return record, true
	}
	record.URL = normalize.CleanURL(record.URL, t.ExtraParams)
	return record, true
}
