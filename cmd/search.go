package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/urfave/cli/v3"

	"github.com/metisearch/metis/pkg/core"
	"github.com/metisearch/metis/pkg/dispatch"
	"github.com/metisearch/metis/pkg/output"
	"github.com/metisearch/metis/pkg/results"
)

// Define styles using lipgloss
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86")).
			Background(lipgloss.Color("235")).
			Padding(0, 1).
			Margin(0, 0, 1, 0)

	resultTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("214"))

	urlStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("33"))

	metaStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true)

	answerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("32")).
			Border(lipgloss.ThickBorder()).
			BorderForeground(lipgloss.Color("32")).
			Padding(0, 1).
			Margin(0, 0, 1, 0)

	infoboxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(1).
			Margin(0, 0, 1, 0)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	noDataStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true).
			Margin(1, 0)
)

// SearchCommand creates the search command
func SearchCommand() *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Search all configured engines and merge the results",
		ArgsUsage: "<query>",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:  "engine",
				Usage: "Restrict the search to specific engine(s). Can be used multiple times",
			},
			&cli.StringSliceFlag{
				Name:  "exclude",
				Usage: "Exclude specific engine(s) from the search",
			},
			&cli.StringSliceFlag{
				Name:  "category",
				Usage: "Search engines in the given category(s) (default: general)",
			},
			&cli.IntFlag{
				Name:  "page",
				Usage: "Result page to fetch (1-based)",
				Value: 1,
			},
			&cli.StringFlag{
				Name:  "language",
				Usage: "Preferred result language (BCP-47 tag, e.g. en or de-AT)",
			},
			&cli.StringFlag{
				Name:  "safesearch",
				Usage: "Safe search level: off, moderate or strict",
			},
			&cli.StringFlag{
				Name:  "time-range",
				Usage: "Restrict results by recency: day, week, month or year",
			},
			&cli.StringFlag{
				Name:  "format",
				Usage: "Output format: json, csv or rss (default: terminal)",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Override the search deadline for this query",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			terms := strings.Join(c.Args().Slice(), " ")
			return runSearch(ctx, c.String("config"), terms, searchFlags{
				engines:    c.StringSlice("engine"),
				exclude:    c.StringSlice("exclude"),
				categories: c.StringSlice("category"),
				page:       c.Int("page"),
				language:   c.String("language"),
				safeSearch: c.String("safesearch"),
				timeRange:  c.String("time-range"),
				format:     c.String("format"),
				timeout:    c.Duration("timeout"),
			})
		},
	}
}

type searchFlags struct {
	engines    []string
	exclude    []string
	categories []string
	page       int
	language   string
	safeSearch string
	timeRange  string
	format     string
	timeout    time.Duration
}

func runSearch(ctx context.Context, configPath, terms string, flags searchFlags) error {
	if strings.TrimSpace(terms) == "" {
		return fmt.Errorf("no search terms given")
	}

	stack, err := buildSearchStack(configPath, false)
	if err != nil {
		return err
	}
	defer stack.Close()

	query := core.NewQuery(terms)
	query.Engines = flags.engines
	query.ExcludedEngines = flags.exclude
	query.Categories = flags.categories
	query.Language = flags.language
	if flags.page > 1 {
		query = query.WithPage(flags.page)
	}
	if flags.safeSearch != "" {
		level, err := core.ParseSafeSearch(flags.safeSearch)
		if err != nil {
			return err
		}
		query.SafeSearch = level
	}
	if flags.timeRange != "" {
		tr, err := core.ParseTimeRange(flags.timeRange)
		if err != nil {
			return err
		}
		query.TimeRange = tr
	}

	var runOpts []dispatch.RunOption
	if flags.timeout > 0 {
		runOpts = append(runOpts, dispatch.WithTimeout(flags.timeout))
	}

	result, err := stack.dispatcher.Run(ctx, query, runOpts...)
	if err != nil {
		return fmt.Errorf("searching: %w", err)
	}

	if flags.format != "" {
		format, err := output.ParseFormat(flags.format)
		if err != nil {
			return err
		}
		return output.Write(os.Stdout, format, result.Frozen)
	}

	fmt.Print(formatSearchOutput(terms, result))
	return nil
}

// formatSearchOutput renders a finished search for the terminal.
func formatSearchOutput(terms string, result *dispatch.SearchResult) string {
	var out strings.Builder
	frozen := result.Frozen

	title := fmt.Sprintf("🔎 %s", terms)
	out.WriteString(titleStyle.Render(title))
	out.WriteString("\n")

	for _, answer := range frozen.Answers {
		out.WriteString(answerStyle.Render(answer.Answer))
		out.WriteString("\n")
	}

	for _, box := range frozen.Infoboxes {
		out.WriteString(infoboxStyle.Render(formatInfobox(box)))
		out.WriteString("\n")
	}

	if len(frozen.Corrections) > 0 {
		out.WriteString(metaStyle.Render(fmt.Sprintf("Did you mean: %s", strings.Join(frozen.Corrections, ", "))))
		out.WriteString("\n\n")
	}

	if len(frozen.Main) == 0 {
		out.WriteString(noDataStyle.Render("No results found."))
		out.WriteString("\n")
	}

	for i, record := range frozen.Main {
		out.WriteString(fmt.Sprintf("%2d. %s\n", i+1, resultTitleStyle.Render(record.Title)))
		out.WriteString(fmt.Sprintf("    %s\n", urlStyle.Render(record.URL)))
		if record.Content != "" {
			out.WriteString(fmt.Sprintf("    %s\n", record.Content))
		}
		meta := fmt.Sprintf("score %.2f · %s", record.Score, strings.Join(record.Engines, ", "))
		out.WriteString(fmt.Sprintf("    %s\n", metaStyle.Render(meta)))
	}

	if len(frozen.Suggestions) > 0 {
		out.WriteString("\n")
		out.WriteString(metaStyle.Render(fmt.Sprintf("Suggestions: %s", strings.Join(frozen.Suggestions, ", "))))
		out.WriteString("\n")
	}

	for _, engineErr := range frozen.EngineErrors {
		out.WriteString(errorStyle.Render(fmt.Sprintf("engine %s failed (%s): %s", engineErr.Engine, engineErr.Kind, engineErr.Message)))
		out.WriteString("\n")
	}

	summary := fmt.Sprintf("%d results from %d engines in %v", len(frozen.Main), len(frozen.Timings), result.Elapsed.Round(time.Millisecond))
	if result.Paging.Available() {
		summary += " (more pages available)"
	}
	out.WriteString("\n")
	out.WriteString(metaStyle.Render(summary))
	out.WriteString("\n")

	return out.String()
}

func formatInfobox(box results.MergedInfobox) string {
	var b strings.Builder
	b.WriteString(resultTitleStyle.Render(box.Title))
	if box.Content != "" {
		b.WriteString("\n")
		b.WriteString(box.Content)
	}
	for _, attr := range box.Attributes {
		b.WriteString(fmt.Sprintf("\n%s: %s", attr.Label, attr.Value))
	}
	for _, link := range box.URLs {
		b.WriteString("\n")
		b.WriteString(urlStyle.Render(fmt.Sprintf("%s: %s", link.Title, link.URL)))
	}
	return b.String()
}
