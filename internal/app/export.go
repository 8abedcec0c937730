package app

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"market-pulse-bot/internal/storage"
)

// Export renders publish history as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	days := a.Config.ResolveExportDays(opts.Days)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}

	from := to.AddDate(0, 0, -days)
	if opts.From != nil {
		from = opts.From.UTC()
	}

	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	activity, err := store.ListDailyActivity(ctx, from, to)
	if err != nil {
		return err
	}
	if len(activity) == 0 {
		a.Logger.Info().Msg("no publish activity found for export window")
		return nil
	}

	a.Logger.Info().
		Int("rows", len(activity)).
		Time("from", from).
		Time("to", to).
		Msg("exporting publish activity")

	if opts.CSVPath != "" {
		if err := writeActivityCSV(opts.CSVPath, activity); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeActivityPNG(opts.PNGPath, activity); err != nil {
			return err
		}
	}

	return nil
}

func writeActivityCSV(path string, activity []storage.DailyActivity) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"day", "platform", "posts"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, row := range activity {
		record := []string{
			row.Day.UTC().Format("2006-01-02"),
			row.Platform,
			strconv.FormatInt(row.Count, 10),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

func writeActivityPNG(path string, activity []storage.DailyActivity) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	type points struct {
		x []time.Time
		y []float64
	}
	byPlatform := make(map[string]*points)
	for _, row := range activity {
		pts, ok := byPlatform[row.Platform]
		if !ok {
			pts = &points{}
			byPlatform[row.Platform] = pts
		}
		pts.x = append(pts.x, row.Day)
		pts.y = append(pts.y, float64(row.Count))
	}

	platforms := make([]string, 0, len(byPlatform))
	for name := range byPlatform {
		platforms = append(platforms, name)
	}
	sort.Strings(platforms)

	countFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.0f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Posts per day",
			ValueFormatter: countFormatter,
		},
	}

	for _, name := range platforms {
		pts := byPlatform[name]
		// go-chart refuses series with a single point.
		if len(pts.x) < 2 {
			continue
		}
		graph.Series = append(graph.Series, chart.TimeSeries{
			Name:    name,
			XValues: pts.x,
			YValues: pts.y,
		})
	}
	if len(graph.Series) == 0 {
		return errors.New("not enough daily activity to chart; need at least two days")
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
