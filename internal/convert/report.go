package convert

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/nadzzz/narrator/internal/audio"
)

// Report holds the timing figures of a finished conversion.
type Report struct {
	Elapsed     time.Duration // start of synthesis to end of cleanup
	Samples     int           // combined sample count
	SampleRate  int
	OutputBytes int64
}

// AudioSeconds is the playback duration of the combined audio.
func (r Report) AudioSeconds() float64 {
	return audio.Seconds(r.Samples, r.SampleRate)
}

// SpeedRatio is audio duration divided by processing time. Zero when no time
// elapsed.
func (r Report) SpeedRatio() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return r.AudioSeconds() / r.Elapsed.Seconds()
}

// Print writes the human-readable summary.
func (r Report) Print(w io.Writer) {
	secs := r.AudioSeconds()
	fmt.Fprintf(w, "\nTotal processing time: %.2f seconds\n", r.Elapsed.Seconds())
	fmt.Fprintf(w, "Audio duration: %.2f seconds (%.2f minutes)\n", secs, secs/60)
	fmt.Fprintf(w, "Encoded at %.2f × speech speed\n", r.SpeedRatio())
	if r.OutputBytes > 0 {
		fmt.Fprintf(w, "Output size: %s\n", humanize.Bytes(uint64(r.OutputBytes)))
	}
}
