package api

import (
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/metisearch/metis/pkg/core"
	"github.com/metisearch/metis/pkg/output"
	"github.com/metisearch/metis/pkg/version"
)

const statsWindow = 24 * time.Hour

// buildQuery translates request parameters into a Query. Shared by the
// search and stream handlers.
func buildQuery(params url.Values) (core.Query, error) {
	query := core.NewQuery(params.Get("q"))

	if categories := params.Get("categories"); categories != "" {
		query.Categories = splitList(categories)
	}
	if engines := params.Get("engines"); engines != "" {
		query.Engines = splitList(engines)
	}
	if excluded := params.Get("exclude_engines"); excluded != "" {
		query.ExcludedEngines = splitList(excluded)
	}
	query.Language = params.Get("lang")

	if pageno := params.Get("pageno"); pageno != "" {
		n, err := strconv.Atoi(pageno)
		if err != nil || n < 1 {
			return query, &paramError{"pageno", pageno}
		}
		query.PageNo = n
	}
	if ss := params.Get("safesearch"); ss != "" {
		parsed, err := core.ParseSafeSearch(ss)
		if err != nil {
			return query, &paramError{"safesearch", ss}
		}
		query.SafeSearch = parsed
	}
	if tr := params.Get("time_range"); tr != "" {
		parsed, err := core.ParseTimeRange(tr)
		if err != nil {
			return query, &paramError{"time_range", tr}
		}
		query.TimeRange = parsed
	}

	return query, query.Validate()
}

type paramError struct {
	name, value string
}

func (e *paramError) Error() string {
	return "invalid " + e.name + " value " + strconv.Quote(e.value)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (s *Server) HandleSearch(w http.ResponseWriter, r *http.Request) {
	format, err := output.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid format", err.Error())
		return
	}

	query, err := buildQuery(r.URL.Query())
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid query", err.Error())
		return
	}

	result, err := s.dispatcher.Run(r.Context(), query)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Search failed", err.Error())
		return
	}

	if s.history != nil {
		if err := s.history.RecordSearch(query, len(result.Frozen.Main),
			len(result.Frozen.EngineErrors), result.Elapsed); err != nil {
			logger.Warnf("recording search: %v", err)
		}
	}

	w.Header().Set("Content-Type", format.ContentType())
	if err := output.Write(w, format, result.Frozen); err != nil {
		logger.Errorf("writing search response: %v", err)
	}
}

func (s *Server) HandleEngines(w http.ResponseWriter, r *http.Request) {
	engines := s.registry.GetAllEngines()

	health := make(map[string]*EngineHealth)
	if s.history != nil {
		stats, err := s.history.Stats(statsWindow)
		if err != nil {
			logger.Warnf("loading engine stats: %v", err)
		}
		for _, stat := range stats {
			health[stat.Engine] = &EngineHealth{
				Requests: stat.Total,
				Failures: stat.Failures,
				LastKind: stat.LastKind,
			}
		}
	}

	infos := make([]EngineInfo, 0, len(engines))
	for name, engine := range engines {
		caps := engine.Capabilities()
		infos = append(infos, EngineInfo{
			Name:       name,
			Type:       engine.Type(),
			Categories: engine.Categories(),
			Weight:     engine.Weight(),
			Paging:     caps.Paging,
			MaxPage:    caps.MaxPage,
			SafeSearch: caps.SafeSearch,
			TimeRange:  caps.TimeRange,
			Locales:    caps.Locales,
			Health:     health[name],
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })

	s.writeJSON(w, http.StatusOK, ListEnginesResponse{
		Engines: infos,
		Count:   len(infos),
	})
}

func (s *Server) HandleStats(w http.ResponseWriter, r *http.Request) {
	response := StatsResponse{Window: statsWindow.String()}
	if s.history != nil {
		stats, err := s.history.Stats(statsWindow)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, "Stats unavailable", err.Error())
			return
		}
		response.Engines = stats
	}
	s.writeJSON(w, http.StatusOK, response)
}

func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		Version:   version.APIVersion(),
	})
}
