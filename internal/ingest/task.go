package ingest

import (
	"fmt"
	"time"

	"github.com/dgnsrekt/roll-pressure/internal/cftc"
	"github.com/dgnsrekt/roll-pressure/internal/rollpressure"
)

// Task loads one market over an inclusive date range.
type Task struct {
	Market string
	Start  time.Time
	End    time.Time
}

func (t Task) String() string {
	return fmt.Sprintf("%s/%s..%s", t.Market, t.Start.Format(rollpressure.DateLayout), t.End.Format(rollpressure.DateLayout))
}

// TasksFor builds one task per market covering the days before end.
func TasksFor(markets []string, days int, end time.Time) []Task {
	start := end.AddDate(0, 0, -days)
	tasks := make([]Task, 0, len(markets))
	for _, m := range markets {
		tasks = append(tasks, Task{Market: m, Start: start, End: end})
	}
	return tasks
}

type TaskResult struct {
	Task          Task
	Rows          []rollpressure.InputRow
	Stats         cftc.NormalizeStats
	MissingExpiry int
	Success       bool
	NotFound      bool
	Error         error
}
