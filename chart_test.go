package lensmcp

import (
	"bytes"
	"context"
	"database/sql/driver"
	"strings"
	"testing"
)

var pngMagic = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

func chartLens(t *testing.T) *DataLens {
	t.Helper()
	lens, _ := newStubLens(t, testConfig(), staticHandler(
		[]string{"region", "revenue"},
		[]driver.Value{[]byte("north"), float64(1250.5)},
		[]driver.Value{[]byte("south"), float64(980.0)},
		[]driver.Value{[]byte("west"), float64(2100.75)},
	))
	return lens
}

func TestPlotGraphBar(t *testing.T) {
	t.Parallel()
	lens := chartLens(t)
	png, err := lens.PlotGraph(context.Background(), ChartInput{
		SQL:       "SELECT region, revenue FROM sales",
		ChartType: "bar",
		XColumn:   "region",
		YColumn:   "revenue",
		Title:     "Revenue by Region",
	})
	if err != nil {
		t.Fatalf("PlotGraph: %v", err)
	}
	if !bytes.HasPrefix(png, pngMagic) {
		t.Fatalf("output does not start with PNG magic: % x", png[:min(len(png), 8)])
	}
}

func TestPlotGraphPie(t *testing.T) {
	t.Parallel()
	lens := chartLens(t)
	png, err := lens.PlotGraph(context.Background(), ChartInput{
		SQL:       "SELECT region, revenue FROM sales",
		ChartType: "pie",
		XColumn:   "region",
		YColumn:   "revenue",
	})
	if err != nil {
		t.Fatalf("PlotGraph: %v", err)
	}
	if !bytes.HasPrefix(png, pngMagic) {
		t.Fatal("pie output is not a PNG")
	}
}

func TestPlotGraphLineWithTextXAxis(t *testing.T) {
	t.Parallel()
	// Non-numeric x values fall back to row order.
	lens := chartLens(t)
	png, err := lens.PlotGraph(context.Background(), ChartInput{
		SQL:       "SELECT region, revenue FROM sales",
		ChartType: "line",
		XColumn:   "region",
		YColumn:   "revenue",
	})
	if err != nil {
		t.Fatalf("PlotGraph: %v", err)
	}
	if !bytes.HasPrefix(png, pngMagic) {
		t.Fatal("line output is not a PNG")
	}
}

func TestPlotGraphScatterNumericAxes(t *testing.T) {
	t.Parallel()
	lens, _ := newStubLens(t, testConfig(), staticHandler(
		[]string{"x", "y"},
		[]driver.Value{float64(1), float64(2)},
		[]driver.Value{float64(2), float64(4)},
		[]driver.Value{float64(3), float64(9)},
	))
	png, err := lens.PlotGraph(context.Background(), ChartInput{
		SQL:       "SELECT x, y FROM points",
		ChartType: "scatter",
		XColumn:   "x",
		YColumn:   "y",
	})
	if err != nil {
		t.Fatalf("PlotGraph: %v", err)
	}
	if !bytes.HasPrefix(png, pngMagic) {
		t.Fatal("scatter output is not a PNG")
	}
}

func TestPlotGraphUnsupportedType(t *testing.T) {
	t.Parallel()
	lens := chartLens(t)
	_, err := lens.PlotGraph(context.Background(), ChartInput{
		SQL:       "SELECT region, revenue FROM sales",
		ChartType: "heatmap",
		XColumn:   "region",
		YColumn:   "revenue",
	})
	if err == nil {
		t.Fatal("PlotGraph = nil error, want unsupported chart type")
	}
	if !strings.Contains(err.Error(), "unsupported chart type") {
		t.Fatalf("PlotGraph error = %q", err.Error())
	}
}

func TestPlotGraphMissingColumn(t *testing.T) {
	t.Parallel()
	lens := chartLens(t)
	_, err := lens.PlotGraph(context.Background(), ChartInput{
		SQL:       "SELECT region, revenue FROM sales",
		ChartType: "bar",
		XColumn:   "region",
		YColumn:   "profit",
	})
	if err == nil {
		t.Fatal("PlotGraph = nil error, want missing-column error")
	}
	if !strings.Contains(err.Error(), "profit") || !strings.Contains(err.Error(), "available") {
		t.Fatalf("PlotGraph error = %q, want it to name the missing column and list available ones", err.Error())
	}
}

func TestPlotGraphRejectsWriteSQL(t *testing.T) {
	t.Parallel()
	// Charts use the same read-only pipeline as the query tool.
	lens := chartLens(t)
	_, err := lens.PlotGraph(context.Background(), ChartInput{
		SQL:       "DELETE FROM sales",
		ChartType: "bar",
		XColumn:   "region",
		YColumn:   "revenue",
	})
	if err == nil {
		t.Fatal("PlotGraph accepted a write statement")
	}
	if !strings.Contains(err.Error(), "read-only violation") {
		t.Fatalf("PlotGraph error = %q, want read-only violation", err.Error())
	}
}

func TestPlotGraphNoRows(t *testing.T) {
	t.Parallel()
	lens, _ := newStubLens(t, testConfig(), staticHandler([]string{"x", "y"}))
	_, err := lens.PlotGraph(context.Background(), ChartInput{
		SQL:       "SELECT x, y FROM empty",
		ChartType: "bar",
		XColumn:   "x",
		YColumn:   "y",
	})
	if err == nil {
		t.Fatal("PlotGraph = nil error, want no-rows error")
	}
	if !strings.Contains(err.Error(), "no rows") {
		t.Fatalf("PlotGraph error = %q", err.Error())
	}
}
