package cmd

import (
	"fmt"
	"time"

	"github.com/pithecene-io/downlink/cli/render"
	"github.com/pithecene-io/downlink/metrics"
	"github.com/pithecene-io/downlink/stream"
	"github.com/pithecene-io/downlink/types"
)

// ReportView is the rendered form of a run report.
type ReportView struct {
	RunID    string           `json:"run_id" yaml:"run_id"`
	Failed   bool             `json:"failed" yaml:"failed"`
	Duration string           `json:"duration" yaml:"duration"`
	Streams  []StreamRow      `json:"streams" yaml:"streams"`
	Metrics  metrics.Snapshot `json:"metrics" yaml:"metrics"`
}

// StreamRow is one logical stream of a ReportView.
type StreamRow struct {
	Index       int    `json:"index" yaml:"index"`
	Outcome     string `json:"outcome" yaml:"outcome"`
	Attempts    int    `json:"attempts" yaml:"attempts"`
	Frames      uint64 `json:"frames" yaml:"frames"`
	Bytes       uint64 `json:"bytes" yaml:"bytes"`
	StreamID    string `json:"stream_id" yaml:"stream_id"`
	ResumeAckID string `json:"resume_ack_id" yaml:"resume_ack_id"`
	Duration    string `json:"duration" yaml:"duration"`
	Error       string `json:"error,omitempty" yaml:"error,omitempty"`
}

func newReportView(report *stream.Report) ReportView {
	view := ReportView{
		RunID:    report.RunID,
		Failed:   report.Failed(),
		Duration: report.Duration.Round(time.Millisecond).String(),
		Streams:  make([]StreamRow, 0, len(report.Results)),
		Metrics:  report.Metrics,
	}
	for _, res := range report.Results {
		view.Streams = append(view.Streams, StreamRow{
			Index:       res.Index,
			Outcome:     string(res.Outcome),
			Attempts:    res.Attempts,
			Frames:      res.State.Frames,
			Bytes:       res.State.Bytes,
			StreamID:    res.State.StreamID,
			ResumeAckID: res.State.ResumeAckID,
			Duration:    res.Duration.Round(time.Millisecond).String(),
			Error:       res.Error,
		})
	}
	return view
}

// summarize counts outcomes for the table footer.
func summarize(report *stream.Report) string {
	counts := map[types.StreamOutcome]int{}
	for _, res := range report.Results {
		counts[res.Outcome]++
	}
	return fmt.Sprintf("%d streams in %s: %d completed, %d closed, %d failed, %d cancelled",
		len(report.Results),
		report.Duration.Round(time.Millisecond),
		counts[types.StreamCompleted],
		counts[types.StreamClosed],
		counts[types.StreamFailed],
		counts[types.StreamCancelled],
	)
}

// renderReport writes the report. Table output lists the streams under a
// run heading with a colored summary; json and yaml carry the full view.
func renderReport(r *render.Renderer, report *stream.Report) error {
	view := newReportView(report)
	if r.Format() != render.FormatTable {
		return r.Render(view)
	}
	if err := r.RenderTitled("run "+view.RunID, view.Streams); err != nil {
		return err
	}
	r.Status(!view.Failed, summarize(report))
	return nil
}
