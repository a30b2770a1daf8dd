package power

import (
	"io"
	"time"

	"github.com/gosuri/uiprogress"
)

const countdownTick = 100 * time.Millisecond

// Countdown returns a Sleeper that renders the wait as a progress bar on w.
func Countdown(w io.Writer) Sleeper {
	return func(d time.Duration) {
		steps := int(d / countdownTick)
		if steps < 1 {
			time.Sleep(d)
			return
		}

		progress := uiprogress.New()
		progress.SetOut(w)
		progress.Start()
		bar := progress.AddBar(steps)
		bar.PrependElapsed()
		bar.AppendCompleted()

		for i := 0; i < steps; i++ {
			time.Sleep(countdownTick)
			bar.Incr()
		}
		time.Sleep(d - time.Duration(steps)*countdownTick)

		progress.Stop()
	}
}
