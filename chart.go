package lensmcp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"
)

// PlotGraph runs a validated query and renders the result as a PNG chart.
// The query goes through the exact same pipeline as the query tool, so
// read-only enforcement, timeouts, row caps, and masking all apply before a
// single pixel is drawn.
func (d *DataLens) PlotGraph(ctx context.Context, input ChartInput) ([]byte, error) {
	output := d.Query(ctx, QueryInput{SQL: input.SQL})
	if output.Error != "" {
		return nil, errors.New(output.Error)
	}
	if len(output.Rows) == 0 {
		return nil, errors.New("query returned no rows, nothing to plot")
	}

	if !hasColumn(output.Columns, input.XColumn) || !hasColumn(output.Columns, input.YColumn) {
		return nil, fmt.Errorf("columns %q or %q not found in query results (available: %s)",
			input.XColumn, input.YColumn, strings.Join(output.Columns, ", "))
	}

	labels := make([]string, len(output.Rows))
	ys := make([]float64, len(output.Rows))
	for i, row := range output.Rows {
		labels[i] = valueLabel(row[input.XColumn])
		y, err := valueFloat(row[input.YColumn])
		if err != nil {
			return nil, fmt.Errorf("column %q row %d: %w", input.YColumn, i, err)
		}
		ys[i] = y
	}

	var buf bytes.Buffer
	var err error
	switch input.ChartType {
	case "bar":
		err = renderBar(&buf, input, labels, ys)
	case "pie":
		err = renderPie(&buf, input, labels, ys)
	case "line", "scatter":
		err = renderXY(&buf, input, output.Rows, ys)
	default:
		return nil, fmt.Errorf("unsupported chart type %q (supported: bar, line, pie, scatter)", input.ChartType)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to render %s chart: %w", input.ChartType, err)
	}

	d.logger.Info().
		Str("chart_type", input.ChartType).
		Int("points", len(ys)).
		Msg("chart rendered")

	return buf.Bytes(), nil
}

func renderBar(buf *bytes.Buffer, input ChartInput, labels []string, ys []float64) error {
	bars := make([]chart.Value, len(ys))
	for i := range ys {
		bars[i] = chart.Value{Label: labels[i], Value: ys[i]}
	}
	graph := chart.BarChart{
		Title:    input.Title,
		Width:    1024,
		Height:   600,
		BarWidth: 48,
		Bars:     bars,
	}
	return graph.Render(chart.PNG, buf)
}

func renderPie(buf *bytes.Buffer, input ChartInput, labels []string, ys []float64) error {
	values := make([]chart.Value, len(ys))
	for i := range ys {
		values[i] = chart.Value{Label: labels[i], Value: ys[i]}
	}
	graph := chart.PieChart{
		Title:  input.Title,
		Width:  800,
		Height: 800,
		Values: values,
	}
	return graph.Render(chart.PNG, buf)
}

func renderXY(buf *bytes.Buffer, input ChartInput, rows []map[string]interface{}, ys []float64) error {
	// Numeric x values when the column converts cleanly; row order otherwise.
	xs := make([]float64, len(rows))
	numericX := true
	for i, row := range rows {
		x, err := valueFloat(row[input.XColumn])
		if err != nil {
			numericX = false
			break
		}
		xs[i] = x
	}
	if !numericX {
		for i := range xs {
			xs[i] = float64(i)
		}
	}

	style := chart.Style{}
	if input.ChartType == "scatter" {
		style = chart.Style{
			StrokeWidth: chart.Disabled,
			DotWidth:    5,
		}
	}

	graph := chart.Chart{
		Title:  input.Title,
		Width:  1024,
		Height: 600,
		XAxis:  chart.XAxis{Name: input.XColumn},
		YAxis:  chart.YAxis{Name: input.YColumn},
		Series: []chart.Series{
			chart.ContinuousSeries{
				Name:    input.YColumn,
				Style:   style,
				XValues: xs,
				YValues: ys,
			},
		},
	}
	return graph.Render(chart.PNG, buf)
}

func hasColumn(columns []string, name string) bool {
	for _, c := range columns {
		if c == name {
			return true
		}
	}
	return false
}

// valueFloat converts a result cell to a float64 for plotting.
func valueFloat(v interface{}) (float64, error) {
	switch val := v.(type) {
	case nil:
		return 0, errors.New("value is NULL")
	case float64:
		return val, nil
	case float32:
		return float64(val), nil
	case int:
		return float64(val), nil
	case int32:
		return float64(val), nil
	case int64:
		return float64(val), nil
	case uint64:
		return float64(val), nil
	case string:
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return 0, fmt.Errorf("value %q is not numeric", val)
		}
		return f, nil
	case time.Time:
		return float64(val.Unix()), nil
	default:
		return 0, fmt.Errorf("value of type %T is not numeric", v)
	}
}

// valueLabel formats a result cell as an axis label.
func valueLabel(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case string:
		return val
	case time.Time:
		return val.Format("2006-01-02")
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}
