// Package export writes the frame records of a session for external tools:
// a plain text file with one block per measurement, and a SQLite database.
package export

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"spindlefit/internal/models"
)

// column is one exported measurement
type column struct {
	name  string
	value func(rec models.FrameRecord, m models.Measurements) float64
}

func shapeValue(f func(s *models.ShapeMetrics) float64) func(models.FrameRecord, models.Measurements) float64 {
	return func(rec models.FrameRecord, _ models.Measurements) float64 {
		if rec.Estimate == nil || rec.Estimate.Shape == nil {
			return 0
		}
		return f(rec.Estimate.Shape)
	}
}

func poleValue(f func(e *models.PoleEstimate) float64) func(models.FrameRecord, models.Measurements) float64 {
	return func(rec models.FrameRecord, _ models.Measurements) float64 {
		if rec.Estimate == nil {
			return 0
		}
		return f(rec.Estimate)
	}
}

// columns are written in this order; the first five match the
// measurement table of the interactive tool
var columns = []column{
	{"Pole Separation (px)", func(_ models.FrameRecord, m models.Measurements) float64 { return m.Length }},
	{"Arc Length (px)", shapeValue(func(s *models.ShapeMetrics) float64 { return s.ArcLength })},
	{"Area Metric (px^2)", shapeValue(func(s *models.ShapeMetrics) float64 { return s.AreaMetric })},
	{"Max Curvature (px^-1)", shapeValue(func(s *models.ShapeMetrics) float64 { return s.MaxCurvature })},
	{"Avg Curvature (px^-1)", shapeValue(func(s *models.ShapeMetrics) float64 { return s.AvgCurvature })},
	{"Angle (deg)", func(_ models.FrameRecord, m models.Measurements) float64 { return m.Angle }},
	{"Midpoint X (px)", func(_ models.FrameRecord, m models.Measurements) float64 { return m.Midpoint.X }},
	{"Midpoint Y (px)", func(_ models.FrameRecord, m models.Measurements) float64 { return m.Midpoint.Y }},
	{"Pole A X (px)", poleValue(func(e *models.PoleEstimate) float64 { return e.PoleA.X })},
	{"Pole A Y (px)", poleValue(func(e *models.PoleEstimate) float64 { return e.PoleA.Y })},
	{"Pole B X (px)", poleValue(func(e *models.PoleEstimate) float64 { return e.PoleB.X })},
	{"Pole B Y (px)", poleValue(func(e *models.PoleEstimate) float64 { return e.PoleB.Y })},
}

// ColumnNames returns the headers of the text export in order.
func ColumnNames() []string {
	names := make([]string, len(columns))
	for i, c := range columns {
		names[i] = c.name
	}
	return names
}

// WriteText writes each column header followed by one value per frame
// (0.0000 for unresolved frames), then "Bad Frames" and the indices of
// every excluded frame.
func WriteText(w io.Writer, records []models.FrameRecord) error {
	bw := bufio.NewWriter(w)

	measurements := make([]models.Measurements, len(records))
	for i, rec := range records {
		measurements[i], _ = rec.Measurements()
	}

	for _, c := range columns {
		fmt.Fprintf(bw, "%s\n", c.name)
		for i, rec := range records {
			fmt.Fprintf(bw, "%.4f\n", c.value(rec, measurements[i]))
		}
	}

	fmt.Fprintln(bw, "Bad Frames")
	for _, rec := range records {
		if rec.Excluded {
			fmt.Fprintf(bw, "%d\n", rec.Index)
		}
	}

	return bw.Flush()
}

// SaveText writes the text export to path.
func SaveText(path string, records []models.FrameRecord) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("error creating export file: %w", err)
	}
	if err := WriteText(file, records); err != nil {
		file.Close()
		return fmt.Errorf("error writing export file: %w", err)
	}
	return file.Close()
}
