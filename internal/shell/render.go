package shell

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/olekukonko/tablewriter"

	"github.com/xtxerr/gemrate/internal/types"
)

var bars = []rune("▁▂▃▄▅▆▇█")

// table prints a borderless table sized to the terminal.
func (s *Shell) table(header []string, rows [][]string) {
	t := tablewriter.NewWriter(s.out)
	t.SetHeader(header)
	t.SetAutoFormatHeaders(true)
	t.SetAutoWrapText(false)
	t.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	t.SetAlignment(tablewriter.ALIGN_LEFT)
	t.SetBorder(false)
	t.SetHeaderLine(false)
	t.SetCenterSeparator("")
	t.SetColumnSeparator("")
	t.SetRowSeparator("")
	t.SetTablePadding("  ")
	t.SetNoWhiteSpace(true)

	// Keep each row on one line.
	cols := s.cols()
	for _, row := range rows {
		if w := runewidth.StringWidth(strings.Join(row, "  ")); w > cols && len(row) > 0 {
			last := len(row) - 1
			row[last] = truncate(row[last], max(cols-(w-runewidth.StringWidth(row[last])), 4))
		}
	}

	t.AppendBulk(rows)
	t.Render()
}

// sparkline draws vs in at most width cells. Longer inputs are averaged
// into width buckets.
func sparkline(vs []float64, width int) string {
	if len(vs) == 0 || width <= 0 {
		return ""
	}

	if len(vs) > width {
		buckets := make([]float64, width)
		for i := range width {
			lo := i * len(vs) / width
			hi := (i + 1) * len(vs) / width
			sum := 0.0
			for _, v := range vs[lo:hi] {
				sum += v
			}
			buckets[i] = sum / float64(hi-lo)
		}
		vs = buckets
	}

	lo, hi := minMax(vs)
	var b strings.Builder
	for _, v := range vs {
		idx := 0
		if hi > lo {
			idx = int((v - lo) / (hi - lo) * float64(len(bars)-1))
		}
		b.WriteRune(bars[idx])
	}
	return b.String()
}

func values(pts []types.Point) []float64 {
	vs := make([]float64, len(pts))
	for i, p := range pts {
		vs[i] = p.Value
	}
	return vs
}

func minMax(vs []float64) (float64, float64) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range vs {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	return lo, hi
}

func formatValue(v float64) string {
	if v == math.Trunc(v) {
		return strconv.FormatFloat(v, 'f', 0, 64)
	}
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func formatOptional(v *float64) string {
	if v == nil {
		return "-"
	}
	return formatValue(*v)
}

func formatTime(ts int64) string {
	return time.Unix(ts, 0).UTC().Format("2006-01-02 15:04")
}

func formatCursor(c *int64) string {
	if c == nil {
		return "-"
	}
	return formatTime(*c)
}

func truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	return runewidth.Truncate(s, width, "…")
}
