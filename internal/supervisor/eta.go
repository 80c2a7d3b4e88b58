package supervisor

import "time"

// etaWindow is how many recently completed task durations feed the ETA.
const etaWindow = 5

// etaEstimator keeps a moving average of recent task durations.
type etaEstimator struct {
	recent []time.Duration
}

func (e *etaEstimator) record(d time.Duration) {
	e.recent = append(e.recent, d)
	if len(e.recent) > etaWindow {
		e.recent = e.recent[len(e.recent)-etaWindow:]
	}
}

func (e *etaEstimator) average() (time.Duration, bool) {
	if len(e.recent) == 0 {
		return 0, false
	}
	var sum time.Duration
	for _, d := range e.recent {
		sum += d
	}
	return sum / time.Duration(len(e.recent)), true
}

// estimate returns the time left given the current task's progress and
// elapsed time and the number of tasks queued after it. Before any task
// has completed the current task's own rate is extrapolated. A negative
// result means no estimate is possible yet.
func (e *etaEstimator) estimate(fraction float64, currentElapsed time.Duration, queued int) time.Duration {
	perTask, ok := e.average()
	if !ok {
		if fraction <= 0 {
			return -1
		}
		perTask = time.Duration(float64(currentElapsed) / fraction)
	}
	left := time.Duration(float64(perTask)*(1-fraction)) + perTask*time.Duration(queued)
	if left < 0 {
		left = 0
	}
	return left
}
