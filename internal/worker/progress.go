package worker

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/muraty261/GlistEngine/internal/pixel"
)

// Progress reports a batch decode on one terminal line while it runs, and
// summarises the recorded results once it is done.
type Progress struct {
	mu      sync.Mutex
	out     io.Writer
	start   time.Time
	enabled bool

	// live counters, fed by the pool
	total, completed, failed int

	// recorded results
	ok       int
	errs     int
	bytes    int64
	formats  map[pixel.Format]int
	slowest  string
	slowTime time.Duration
}

// NewProgress creates a tracker for total images. When enabled, every
// Update rewrites the progress line on stderr.
func NewProgress(total int, enabled bool) *Progress {
	return &Progress{
		out:     os.Stderr,
		start:   time.Now(),
		enabled: enabled,
		total:   total,
		formats: make(map[pixel.Format]int),
	}
}

// Update matches ProgressFunc and redraws the progress line.
func (p *Progress) Update(completed, total, failed int) {
	p.mu.Lock()
	p.completed, p.total, p.failed = completed, total, failed
	line := p.line()
	p.mu.Unlock()

	if p.enabled {
		fmt.Fprint(p.out, line)
	}
}

// Callback returns Update as a ProgressFunc for Config.OnProgress.
func (p *Progress) Callback() ProgressFunc {
	return p.Update
}

// Record adds one finished result to the summary.
func (p *Progress) Record(r Result) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if r.Err != nil || r.Buffer == nil {
		p.errs++
		return
	}
	p.ok++
	p.bytes += int64(r.Buffer.SizeBytes())
	p.formats[r.Buffer.Format()]++
	if r.Elapsed > p.slowTime {
		p.slowest, p.slowTime = r.Task.Name, r.Elapsed
	}
}

// line renders "\r 3/10 images  30%  1 failed" padded to clear leftovers.
// Callers hold p.mu.
func (p *Progress) line() string {
	pct := 100
	if p.total > 0 {
		pct = p.completed * 100 / p.total
	}
	s := fmt.Sprintf("\r%d/%d images %3d%%", p.completed, p.total, pct)
	if p.failed > 0 {
		s += fmt.Sprintf("  %d failed", p.failed)
	}
	if elapsed := time.Since(p.start); p.completed > 0 && elapsed > 0 {
		s += fmt.Sprintf("  %.1f images/sec", float64(p.completed)/elapsed.Seconds())
	}
	return s + "    "
}

// Done ends the progress line.
func (p *Progress) Done() {
	if p.enabled {
		fmt.Fprintln(p.out)
	}
}

// Summary describes the recorded results, for example
// "Decoded 3/4 images (1 failed): 2 int8, 1 hdr; 1.50 MB at 12.0 MB/s in 125ms, slowest sky.hdr (80ms)".
func (p *Progress) Summary() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	elapsed := time.Since(p.start)
	mb := float64(p.bytes) / (1 << 20)

	var b strings.Builder
	fmt.Fprintf(&b, "Decoded %d/%d images", p.ok, p.total)
	if p.errs > 0 {
		fmt.Fprintf(&b, " (%d failed)", p.errs)
	}

	if len(p.formats) > 0 {
		formats := make([]pixel.Format, 0, len(p.formats))
		for f := range p.formats {
			formats = append(formats, f)
		}
		sort.Slice(formats, func(i, j int) bool { return formats[i] < formats[j] })
		parts := make([]string, len(formats))
		for i, f := range formats {
			parts[i] = fmt.Sprintf("%d %s", p.formats[f], f)
		}
		b.WriteString(": " + strings.Join(parts, ", "))
	}

	fmt.Fprintf(&b, "; %.2f MB", mb)
	if s := elapsed.Seconds(); s > 0 {
		fmt.Fprintf(&b, " at %.1f MB/s", mb/s)
	}
	fmt.Fprintf(&b, " in %s", elapsed.Round(time.Millisecond))
	if p.slowest != "" {
		fmt.Fprintf(&b, ", slowest %s (%s)", p.slowest, p.slowTime.Round(time.Millisecond))
	}
	return b.String()
}
