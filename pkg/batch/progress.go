package batch

import (
	"fmt"
	"io"
	"strings"
	"time"
)

// ConsoleProgress returns a ProgressCallback that draws a progress bar
// with elapsed and remaining time on w.
func ConsoleProgress(w io.Writer) ProgressCallback {
	start := time.Now()
	return func(completed, total int, message string) {
		if total <= 0 {
			if message != "" {
				fmt.Fprintln(w, message)
			}
			return
		}
		fmt.Fprint(w, "\r"+progressLine(completed, total, time.Since(start), message))
		if completed >= total {
			fmt.Fprintln(w)
		}
	}
}

// progressLine renders one progress update
func progressLine(completed, total int, elapsed time.Duration, message string) string {
	const width = 40
	percentage := float64(completed) / float64(total) * 100
	numBars := int(percentage / 100 * width)

	var bar strings.Builder
	bar.WriteString("[")
	for i := 0; i < width; i++ {
		switch {
		case i < numBars:
			bar.WriteString("█")
		case i == numBars:
			bar.WriteString("▓")
		default:
			bar.WriteString("░")
		}
	}
	bar.WriteString("]")

	statusInfo := ""
	if message != "" {
		statusInfo = " | " + message
	}

	if completed == 0 {
		return fmt.Sprintf("%s %.1f%% (%d/%d)%s", bar.String(), percentage, completed, total, statusInfo)
	}

	remaining := 0.0
	if completed < total {
		remaining = elapsed.Seconds() / float64(completed) * float64(total-completed)
	}
	return fmt.Sprintf("%s %.1f%% (%d/%d) [%.1fs elapsed | %s remaining%s]",
		bar.String(), percentage, completed, total, elapsed.Seconds(), formatSeconds(remaining), statusInfo)
}

// formatSeconds picks seconds, minutes or hours depending on the duration
func formatSeconds(s float64) string {
	switch {
	case s < 60:
		return fmt.Sprintf("%.1fs", s)
	case s < 3600:
		return fmt.Sprintf("%.1fm", s/60)
	default:
		return fmt.Sprintf("%.1fh", s/3600)
	}
}
