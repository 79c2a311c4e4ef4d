package report

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"text/tabwriter"

	"gonum.org/v1/gonum/mat"
)

// Console renders reports as plain text on a writer.
//
// It is safe for concurrent use; writes are serialized.
type Console struct {
	mu sync.Mutex
	w  io.Writer

	// BatchEvery controls how often batch progress is printed (0 disables
	// batch lines; epoch lines are always printed).
	BatchEvery int
}

// NewConsole creates a console reporter writing to w.
func NewConsole(w io.Writer) *Console {
	return &Console{w: w}
}

func (c *Console) header(s Surface) {
	if s.Tab != "" {
		fmt.Fprintf(c.w, "\n== %s / %s ==\n", s.Tab, s.Name)
		return
	}
	fmt.Fprintf(c.w, "\n== %s ==\n", s.Name)
}

// ShowModelSummary prints the layer table.
func (c *Console) ShowModelSummary(s Surface, lines []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.header(s)
	for _, line := range lines {
		fmt.Fprintln(c.w, line)
	}
}

// ShowFitProgress prints a header and returns a sink printing the requested
// metrics as they arrive.
func (c *Console) ShowFitProgress(s Surface, metrics []string) ProgressSink {
	c.mu.Lock()
	c.header(s)
	c.mu.Unlock()

	return &consoleSink{c: c, metrics: metrics}
}

// ShowHistory prints one row per epoch.
func (c *Console) ShowHistory(s Surface, h *History, metrics []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.header(s)
	if h == nil {
		return
	}
	if h.RunID != "" {
		fmt.Fprintf(c.w, "run %s\n", h.RunID)
	}

	tw := tabwriter.NewWriter(c.w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "epoch\t%s\n", strings.Join(metrics, "\t"))
	for i, epoch := range h.Epochs {
		cells := make([]string, len(metrics))
		for j, m := range metrics {
			values := h.Metrics[m]
			if i < len(values) {
				cells[j] = formatMetric(m, values[i])
			} else {
				cells[j] = "-"
			}
		}
		fmt.Fprintf(tw, "%d\t%s\n", epoch+1, strings.Join(cells, "\t"))
	}
	_ = tw.Flush()
}

// ShowPerClassAccuracy prints a class / accuracy / count table.
func (c *Console) ShowPerClassAccuracy(s Surface, table []ClassAccuracy, classNames []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.header(s)
	tw := tabwriter.NewWriter(c.w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "class\taccuracy\t# samples")
	for i, row := range table {
		fmt.Fprintf(tw, "%s\t%.4f\t%d\n", className(classNames, i), row.Accuracy, row.Count)
	}
	_ = tw.Flush()
}

// ShowConfusionMatrix prints the matrix with rows as true classes and
// columns as predicted classes.
func (c *Console) ShowConfusionMatrix(s Surface, m *mat.Dense, classNames []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.header(s)
	if m == nil {
		return
	}
	fmt.Fprintf(c.w, "rows: true class, columns: predicted (%s)\n", strings.Join(classNames, ", "))
	fmt.Fprintf(c.w, "%v\n", mat.Formatted(m, mat.Squeeze()))
}

type consoleSink struct {
	c       *Console
	metrics []string
}

func (s *consoleSink) OnBatchEnd(epoch, batch int, logs Logs) {
	every := s.c.BatchEvery
	if every <= 0 || (batch+1)%every != 0 {
		return
	}
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	fmt.Fprintf(s.c.w, "  epoch %d batch %d %s\n", epoch+1, batch+1, s.format(logs))
}

func (s *consoleSink) OnEpochEnd(epoch int, logs Logs) {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	fmt.Fprintf(s.c.w, "epoch %d %s\n", epoch+1, s.format(logs))
}

func (s *consoleSink) format(logs Logs) string {
	keys := s.metrics
	if len(keys) == 0 {
		keys = make([]string, 0, len(logs))
		for k := range logs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
	}
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		if v, ok := logs[k]; ok {
			parts = append(parts, k+"="+formatMetric(k, v))
		}
	}
	return strings.Join(parts, " ")
}

func formatMetric(name string, v float64) string {
	if strings.Contains(name, "acc") {
		return fmt.Sprintf("%.2f%%", v*100)
	}
	return fmt.Sprintf("%.4f", v)
}

func className(names []string, i int) string {
	if i < len(names) {
		return names[i]
	}
	return fmt.Sprintf("%d", i)
}
