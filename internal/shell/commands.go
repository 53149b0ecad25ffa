package shell

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/xtxerr/gemrate/internal/server"
	"github.com/xtxerr/gemrate/internal/stats"
	"github.com/xtxerr/gemrate/internal/types"
)

// defaultRows is how many points raw, daily and weekly print without n.
const defaultRows = 20

type command struct {
	name      string
	usage     string
	help      string
	takesKind bool
	run       func(s *Shell, ctx context.Context, args []string) error
}

var commands []command

func init() {
	commands = []command{
		{name: "kinds", usage: "kinds", help: "list served datasets", run: (*Shell).cmdKinds},
		{name: "raw", usage: "raw [kind] [n]", help: "newest n raw ticks", takesKind: true, run: seriesCommand(types.SeriesRaw)},
		{name: "daily", usage: "daily [kind] [n]", help: "newest n points of the 24h average", takesKind: true, run: seriesCommand(types.SeriesDaily)},
		{name: "weekly", usage: "weekly [kind] [n]", help: "newest n points of the 7d average", takesKind: true, run: seriesCommand(types.SeriesWeekly)},
		{name: "chart", usage: "chart [kind]", help: "all three series at a glance", takesKind: true, run: (*Shell).cmdChart},
		{name: "summary", usage: "summary [kind]", help: "24h and 7d window statistics", takesKind: true, run: (*Shell).cmdSummary},
		{name: "watch", usage: "watch [kind]", help: "follow refresh cycles until Ctrl-C", takesKind: true, run: (*Shell).cmdWatch},
		{name: "health", usage: "health", help: "refresh status of every dataset", run: (*Shell).cmdHealth},
		{name: "help", usage: "help", help: "show this help", run: (*Shell).cmdHelp},
		{name: "exit", usage: "exit", help: "leave the shell"},
	}
}

func lookup(name string) (command, bool) {
	if name == "quit" {
		name = "exit"
	}
	for _, c := range commands {
		if c.name == name {
			return c, true
		}
	}
	return command{}, false
}

// Execute runs one command line.
func (s *Shell) Execute(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}

	cmd, ok := lookup(strings.ToLower(fields[0]))
	if !ok {
		return fmt.Errorf("%w %q, try help", ErrUnknownCommand, fields[0])
	}
	if cmd.run == nil {
		return ErrExit
	}

	log.Debug("execute", "command", cmd.name, "args", fields[1:])
	return cmd.run(s, ctx, fields[1:])
}

func usageError(cmd string) error {
	c, _ := lookup(cmd)
	return fmt.Errorf("%w: %s", ErrUsage, c.usage)
}

// parseKind reads the optional kind argument. It defaults to gem_to_gold.
func parseKind(cmd string, args []string, max int) (types.Kind, []string, error) {
	if len(args) > max {
		return 0, nil, usageError(cmd)
	}
	if len(args) == 0 {
		return types.KindGemToGold, nil, nil
	}
	if _, err := strconv.Atoi(args[0]); err == nil {
		// "raw 10" means the default kind.
		return types.KindGemToGold, args, nil
	}
	k, err := types.ParseKind(args[0])
	if err != nil {
		return 0, nil, err
	}
	return k, args[1:], nil
}

// =============================================================================
// Commands
// =============================================================================

func (s *Shell) cmdHelp(_ context.Context, _ []string) error {
	rows := make([][]string, 0, len(commands))
	for _, c := range commands {
		rows = append(rows, []string{c.usage, c.help})
	}
	s.table([]string{"command", "description"}, rows)
	fmt.Fprintln(s.out, "kind is gem_to_gold or gold_to_gem and defaults to gem_to_gold")
	return nil
}

func (s *Shell) cmdKinds(ctx context.Context, args []string) error {
	if len(args) != 0 {
		return usageError("kinds")
	}
	h, err := s.c.Health(ctx)
	if err != nil {
		return err
	}

	rows := make([][]string, 0, len(h.Datasets))
	for _, d := range h.Datasets {
		label := d.Kind
		if k, err := types.ParseKind(d.Kind); err == nil {
			label = k.Label()
		}
		rows = append(rows, []string{d.Kind, label, d.State, strconv.Itoa(d.Points), formatCursor(d.Cursor)})
	}
	s.table([]string{"kind", "label", "state", "points", "cursor"}, rows)
	return nil
}

func seriesCommand(name types.SeriesName) func(*Shell, context.Context, []string) error {
	return func(s *Shell, ctx context.Context, args []string) error {
		kind, rest, err := parseKind(name.String(), args, 2)
		if err != nil {
			return err
		}
		n := defaultRows
		if len(rest) == 1 {
			n, err = strconv.Atoi(rest[0])
			if err != nil || n <= 0 {
				return usageError(name.String())
			}
		}

		pts, err := s.c.Series(ctx, kind, name, n)
		if err != nil {
			return err
		}
		if len(pts) == 0 {
			fmt.Fprintf(s.out, "%s %s: no data\n", kind, name)
			return nil
		}

		rows := make([][]string, len(pts))
		for i, p := range pts {
			rows[i] = []string{formatTime(p.Timestamp()), formatValue(p.Value)}
		}
		s.table([]string{"time (utc)", kind.Label()}, rows)
		fmt.Fprintln(s.out, sparkline(values(pts), s.cols()))
		return nil
	}
}

func (s *Shell) cmdChart(ctx context.Context, args []string) error {
	kind, _, err := parseKind("chart", args, 1)
	if err != nil {
		return err
	}
	chart, err := s.c.Chart(ctx, kind)
	if err != nil {
		return err
	}

	fmt.Fprintln(s.out, kind.Label())
	labelWidth := 0
	for _, l := range chart {
		labelWidth = max(labelWidth, len(l.Label))
	}

	rows := make([][]string, 0, len(chart))
	for _, l := range chart {
		if len(l.Data) == 0 {
			rows = append(rows, []string{l.Label, "0", "-", "-", "-", "-"})
			continue
		}
		vs := values(l.Data)
		lo, hi := minMax(vs)
		rows = append(rows, []string{
			l.Label,
			strconv.Itoa(len(l.Data)),
			formatTime(l.Data[len(l.Data)-1].Timestamp()),
			formatValue(vs[len(vs)-1]),
			formatValue(lo),
			formatValue(hi),
		})
	}
	s.table([]string{"series", "points", "last at", "last", "min", "max"}, rows)

	for _, l := range chart {
		if len(l.Data) == 0 {
			continue
		}
		fmt.Fprintf(s.out, "%-*s %s\n", labelWidth, l.Label, sparkline(values(l.Data), s.cols()-labelWidth-1))
	}
	return nil
}

func (s *Shell) cmdSummary(ctx context.Context, args []string) error {
	kind, _, err := parseKind("summary", args, 1)
	if err != nil {
		return err
	}
	sum, err := s.c.Summary(ctx, kind)
	if err != nil {
		return err
	}

	fmt.Fprintf(s.out, "%s, cursor %s\n", kind.Label(), formatCursor(sum.Cursor))
	s.table(
		[]string{"window", "count", "min", "avg", "max", "p50", "p90", "p95", "p99"},
		[][]string{summaryRow("24h", sum.Day), summaryRow("7d", sum.Week)},
	)
	return nil
}

func summaryRow(window string, st stats.Summary) []string {
	if st.Count == 0 {
		return []string{window, "0", "-", "-", "-", "-", "-", "-", "-"}
	}
	return []string{
		window,
		strconv.FormatInt(st.Count, 10),
		formatValue(st.Min),
		formatValue(st.Avg),
		formatValue(st.Max),
		formatOptional(st.P50),
		formatOptional(st.P90),
		formatOptional(st.P95),
		formatOptional(st.P99),
	}
}

func (s *Shell) cmdHealth(ctx context.Context, args []string) error {
	if len(args) != 0 {
		return usageError("health")
	}
	h, err := s.c.Health(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(s.out, "status %s, %d cycles\n", h.Status, h.Cycles)

	// Errors get whatever width the other columns leave.
	errWidth := max(s.cols()-70, 20)
	rows := make([][]string, 0, len(h.Datasets))
	for _, d := range h.Datasets {
		last := "-"
		if !d.LastFetch.IsZero() {
			last = d.LastFetch.UTC().Format("15:04:05")
		}
		rows = append(rows, []string{
			d.Kind,
			d.State,
			strconv.Itoa(d.Points),
			strconv.FormatInt(d.Fetches, 10),
			strconv.FormatInt(d.Ticks, 10),
			last,
			truncate(d.LastError, errWidth),
		})
	}
	s.table([]string{"kind", "state", "points", "fetches", "ticks", "last fetch", "last error"}, rows)
	return nil
}

func (s *Shell) cmdWatch(ctx context.Context, args []string) error {
	kind, _, err := parseKind("watch", args, 1)
	if err != nil {
		return err
	}

	fmt.Fprintf(s.out, "watching %s, Ctrl-C to stop\n", kind)
	return s.c.Watch(ctx, kind, func(msg server.StreamMessage) error {
		if msg.Error != "" {
			fmt.Fprintf(s.out, "cycle %d: %s\n", msg.Cycle, msg.Error)
			return nil
		}
		parts := make([]string, 0, len(msg.Chart))
		for _, l := range msg.Chart {
			v := "-"
			if len(l.Data) > 0 {
				v = formatValue(l.Data[len(l.Data)-1].Value)
			}
			parts = append(parts, l.Label+" "+v)
		}
		fmt.Fprintf(s.out, "cycle %d: %s\n", msg.Cycle, truncate(strings.Join(parts, ", "), s.cols()-12))
		return nil
	})
}
