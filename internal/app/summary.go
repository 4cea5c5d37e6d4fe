package app

import (
	"fmt"
	"io"
	"time"

	"github.com/olekukonko/tablewriter"

	"s2s-stream-client/internal/service/coordinator"
	"s2s-stream-client/internal/service/session"
)

// PrintSummary writes one row per unit followed by run totals and throughput.
func PrintSummary(w io.Writer, report coordinator.Report) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Unit", "Input", "Iteration", "Status", "Chunks", "Audio", "Elapsed", "Transcript", "TTS File"})
	table.SetBorder(false)
	table.SetCenterSeparator("|")
	table.SetColumnSeparator("|")
	table.SetRowSeparator("-")
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)

	for _, o := range report.Outcomes {
		table.Append([]string{
			o.Unit.ID,
			o.Unit.Name(),
			fmt.Sprintf("%d", o.Unit.Iteration),
			status(o),
			fmt.Sprintf("%d", o.ChunksSent),
			fmt.Sprintf("%.2f s", o.AudioSent.Seconds()),
			fmt.Sprintf("%.2f s", o.Elapsed.Seconds()),
			truncate(o.Transcript(), 60),
			o.TTSAudioFile,
		})
	}
	table.Render()

	succeeded, failed, skipped := report.Counts()
	audioSecs := report.AudioProcessed().Seconds()
	fmt.Fprintf(w, "Sessions: %d succeeded, %d failed, %d skipped\n", succeeded, failed, skipped)
	fmt.Fprintf(w, "Run time: %.4g sec.\n", report.Elapsed.Seconds())
	fmt.Fprintf(w, "Total audio processed: %.4g sec.\n", audioSecs)
	fmt.Fprintf(w, "Throughput: %.4g RTFX\n", RTFX(report.AudioProcessed(), report.Elapsed))
}

// RTFX is seconds of audio processed per second of wall-clock time.
func RTFX(audio, elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 0
	}
	return audio.Seconds() / elapsed.Seconds()
}

func status(o session.Outcome) string {
	switch {
	case o.Skipped:
		return "skipped"
	case o.Success() && o.Interrupted:
		return "ok (interrupted)"
	case o.Success():
		return "ok"
	case o.Err != nil:
		return fmt.Sprintf("failed at %s: %v", o.Stage, o.Err)
	default:
		return "failed"
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
