package report

import (
	"bytes"
	"fmt"

	chart "github.com/wcharczuk/go-chart/v2"
)

// renderChart draws the ranked concept counts as a bar chart PNG. Bars are
// labeled by rank; the chart font has no CJK glyphs, so the concept names
// themselves live in the PDF table next to the chart.
func renderChart(concepts []ConceptCount) ([]byte, error) {
	if len(concepts) == 0 {
		return nil, nil
	}

	bars := make([]chart.Value, len(concepts))
	for i, c := range concepts {
		bars[i] = chart.Value{
			Label: fmt.Sprintf("#%d", i+1),
			Value: float64(c.Count),
		}
	}

	graph := chart.BarChart{
		Title:    "Top confused concepts (questions per concept)",
		Width:    900,
		Height:   480,
		BarWidth: 56,
		Bars:     bars,
	}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
