package broadcast

import (
	"github.com/ternarybob/playforge/internal/interfaces"
	"github.com/ternarybob/playforge/internal/models"
)

// Narration is the per-job countdown and technical log stream.
// It is advanced one unit per Tick and is owned by the caller's goroutine.
// After Stop nothing more is emitted.
type Narration struct {
	b   *Broadcaster
	job models.Job

	remaining int
	maxTicks  int
	lineCap   int
	ticks     int
	lines     int

	countdownDone bool
	logsDone      bool
}

func newNarration(b *Broadcaster, job models.Job) *Narration {
	lineCap := b.settings.LogLineCap
	if lineCap > len(technicalLines) {
		lineCap = len(technicalLines)
	}
	return &Narration{
		b:         b,
		job:       job,
		remaining: b.settings.CountdownTicks,
		maxTicks:  b.settings.CountdownTicks + 1,
		lineCap:   lineCap,
		logsDone:  lineCap == 0,
	}
}

// Tick advances the countdown and emits the next log line
func (n *Narration) Tick() {
	if n == nil || n.Done() {
		return
	}
	n.ticks++

	if !n.countdownDone {
		n.remaining--
		if n.remaining >= 0 {
			n.b.emit(interfaces.EventAILogCountdownUpdate, countdownPayload{
				RequestID: n.job.ID,
				Seconds:   n.remaining,
			})
		}
		if n.remaining <= 0 || n.ticks >= n.maxTicks {
			n.countdownDone = true
		}
	}

	if !n.logsDone {
		n.b.log("> " + technicalLines[n.lines] + "\n")
		n.lines++
		if n.lines >= n.lineCap {
			n.logsDone = true
		}
	}
}

// Stop ends both streams
func (n *Narration) Stop() {
	if n != nil {
		n.countdownDone = true
		n.logsDone = true
	}
}

// Done reports whether both streams have ended
func (n *Narration) Done() bool {
	return n.countdownDone && n.logsDone
}

// Remaining returns the countdown value last emitted
func (n *Narration) Remaining() int {
	if n.remaining < 0 {
		return 0
	}
	return n.remaining
}

// Lines returns the number of log lines emitted so far
func (n *Narration) Lines() int {
	return n.lines
}
