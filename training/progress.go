package training

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// ProgressBar provides terminal progress visualization for a training epoch.
type ProgressBar struct {
	description string
	total       int
	current     int
	startTime   time.Time
	width       int
	metrics     map[string]float64
}

// NewProgressBar creates a new progress bar over total steps.
func NewProgressBar(description string, total int) *ProgressBar {
	if total < 1 {
		total = 1
	}
	return &ProgressBar{
		description: description,
		total:       total,
		startTime:   time.Now(),
		width:       40,
		metrics:     make(map[string]float64),
	}
}

// Update advances the progress bar and refreshes the displayed metrics.
func (pb *ProgressBar) Update(step int, metrics map[string]float64) {
	pb.current = step
	for k, v := range metrics {
		pb.metrics[k] = v
	}
	pb.render()
}

// Finish completes the progress bar.
func (pb *ProgressBar) Finish() {
	pb.current = pb.total
	pb.render()
	fmt.Println()
}

// render draws the progress bar.
func (pb *ProgressBar) render() {
	percentage := float64(pb.current) / float64(pb.total)
	if percentage > 1.0 {
		percentage = 1.0
	}

	filled := int(percentage * float64(pb.width))
	if filled > pb.width {
		filled = pb.width
	}
	bar := strings.Repeat("█", filled) + strings.Repeat(" ", pb.width-filled)

	elapsed := time.Since(pb.startTime)

	// Stable metric ordering across redraws
	keys := make([]string, 0, len(pb.metrics))
	for k := range pb.metrics {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var metricStr strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&metricStr, " %s=%.6f", k, pb.metrics[k])
	}

	fmt.Printf("\r%s [%s] %d/%d (%.0f%%) %v%s",
		pb.description, bar, pb.current, pb.total, percentage*100,
		elapsed.Round(time.Millisecond), metricStr.String())
}
