// Package report renders per-user allocation reports as standalone HTML.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"capfolio/internal/types"
)

const (
	chartWidth  = "720px"
	chartHeight = "480px"
)

// Generator writes one HTML file per rebalance into dir, comparing the
// target allocation with the holdings the cycle started from.
type Generator struct {
	dir string
}

func NewGenerator(dir string) (*Generator, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating report dir failed: %w", err)
	}
	return &Generator{dir: dir}, nil
}

func (g *Generator) Generate(userID string, bal *types.Balance, mode string) error {
	page := components.NewPage()
	page.SetPageTitle(fmt.Sprintf("Allocation %s", userID))
	page.AddCharts(
		allocationPie(fmt.Sprintf("Target allocation (%s)", mode), targetData(bal, mode)),
		allocationPie("Current allocation", currentData(bal)),
	)

	name := fmt.Sprintf("%s-%s.html", userID, time.Now().UTC().Format("20060102-150405"))
	f, err := os.Create(filepath.Join(g.dir, name))
	if err != nil {
		return err
	}
	defer f.Close()
	return page.Render(f)
}

func allocationPie(title string, data []opts.PieData) *charts.Pie {
	pie := charts.NewPie()
	pie.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: title}),
		charts.WithInitializationOpts(opts.Initialization{Width: chartWidth, Height: chartHeight}),
	)
	pie.AddSeries("allocation", data).
		SetSeriesOptions(charts.WithLabelOpts(opts.Label{
			Show:      opts.Bool(true),
			Formatter: "{b}: {d}%",
		}))
	return pie
}

func targetData(bal *types.Balance, mode string) []opts.PieData {
	var data []opts.PieData
	for _, a := range bal.Assets {
		if a.Allocation == nil {
			continue
		}
		frac := a.Allocation.Fraction(mode)
		if !frac.IsPositive() {
			continue
		}
		val, _ := frac.Float64()
		data = append(data, opts.PieData{Name: a.Symbol, Value: val * 100})
	}
	return data
}

func currentData(bal *types.Balance) []opts.PieData {
	var data []opts.PieData
	for _, a := range bal.Assets {
		if !a.AllocationCurrent.IsPositive() {
			continue
		}
		val, _ := a.AllocationCurrent.Float64()
		data = append(data, opts.PieData{Name: a.Symbol, Value: val * 100})
	}
	return data
}
