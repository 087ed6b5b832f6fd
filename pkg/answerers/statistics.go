package answerers

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/metisearch/metis/pkg/core"
)

// StatisticsAnswerer computes basic statistics over a list of numbers:
// "avg 1 2 3", "min ...", "max ...", "sum ...", "prod ...".
type StatisticsAnswerer struct{}

func NewStatisticsAnswerer() *StatisticsAnswerer { return &StatisticsAnswerer{} }

func (a *StatisticsAnswerer) Name() string { return "statistics" }

func (a *StatisticsAnswerer) Keywords() []string {
	return []string{"avg", "average", "mean", "min", "max", "sum", "prod"}
}

func (a *StatisticsAnswerer) Answer(ctx context.Context, query core.Query) ([]core.ResultRecord, error) {
	rest, ok := Triggered(a, query)
	if !ok {
		return nil, nil
	}

	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return nil, nil
	}
	numbers := make([]float64, 0, len(fields))
	for _, f := range fields {
		n, err := strconv.ParseFloat(f, 64)
		if err != nil {
			// Not a number list, leave the query to the engines.
			return nil, nil
		}
		numbers = append(numbers, n)
	}

	keyword := strings.ToLower(strings.Fields(query.Terms)[0])
	var value float64
	switch keyword {
	case "avg", "average", "mean":
		for _, n := range numbers {
			value += n
		}
		value /= float64(len(numbers))
	case "min":
		sort.Float64s(numbers)
		value = numbers[0]
	case "max":
		sort.Float64s(numbers)
		value = numbers[len(numbers)-1]
	case "sum":
		for _, n := range numbers {
			value += n
		}
	case "prod":
		value = 1
		for _, n := range numbers {
			value *= n
		}
	}

	return []core.ResultRecord{{
		Engine: a.Name(),
		Area:   core.AreaAnswer,
		Answer: fmt.Sprintf("%s(%s) = %s", keyword, strings.Join(fields, ", "),
			strconv.FormatFloat(value, 'f', -1, 64)),
	}}, nil
}
