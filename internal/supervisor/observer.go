package supervisor

import (
	"sync"
	"time"
)

// Observer receives run notifications. All calls for one run come from a
// single goroutine, in task order; implementations must not block for long.
type Observer interface {
	OnTaskStart(t TaskInfo)
	OnProgress(p Progress)
	OnTaskDone(t TaskInfo)
	OnTaskFailed(t TaskInfo, f Failure)
	OnRunDone(s *Summary)
}

// NopObserver ignores every notification.
type NopObserver struct{}

func (NopObserver) OnTaskStart(TaskInfo)           {}
func (NopObserver) OnProgress(Progress)            {}
func (NopObserver) OnTaskDone(TaskInfo)            {}
func (NopObserver) OnTaskFailed(TaskInfo, Failure) {}
func (NopObserver) OnRunDone(*Summary)             {}

// MultiObserver fans notifications out to several observers in order.
type MultiObserver []Observer

func (m MultiObserver) OnTaskStart(t TaskInfo) {
	for _, o := range m {
		o.OnTaskStart(t)
	}
}

func (m MultiObserver) OnProgress(p Progress) {
	for _, o := range m {
		o.OnProgress(p)
	}
}

func (m MultiObserver) OnTaskDone(t TaskInfo) {
	for _, o := range m {
		o.OnTaskDone(t)
	}
}

func (m MultiObserver) OnTaskFailed(t TaskInfo, f Failure) {
	for _, o := range m {
		o.OnTaskFailed(t, f)
	}
}

func (m MultiObserver) OnRunDone(s *Summary) {
	for _, o := range m {
		o.OnRunDone(s)
	}
}

// Event types published by Broadcaster.
const (
	EventTaskStart  = "task_start"
	EventProgress   = "progress"
	EventTaskDone   = "task_done"
	EventTaskFailed = "task_failed"
	EventRunDone    = "run_done"
)

// Event is the channel form of an observer notification.
type Event struct {
	Type     string    `json:"type"`
	Time     time.Time `json:"time"`
	Task     *TaskInfo `json:"task,omitempty"`
	Progress *Progress `json:"progress,omitempty"`
	Failure  *Failure  `json:"failure,omitempty"`
	Summary  *Summary  `json:"summary,omitempty"`
}

// Broadcaster is an Observer that republishes notifications as Events to
// any number of subscribers. Progress events are dropped for a subscriber
// whose buffer is full; other events wait up to a second for room.
type Broadcaster struct {
	mu     sync.Mutex
	subs   map[chan Event]struct{}
	buffer int
}

// NewBroadcaster creates a Broadcaster whose subscriber channels hold
// buffer events.
func NewBroadcaster(buffer int) *Broadcaster {
	if buffer <= 0 {
		buffer = 64
	}
	return &Broadcaster{subs: make(map[chan Event]struct{}), buffer: buffer}
}

// Subscribe returns a channel of events and a function that cancels the
// subscription and closes the channel.
func (b *Broadcaster) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, b.buffer)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
}

func (b *Broadcaster) publish(e Event) {
	e.Time = time.Now()
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		if e.Type == EventProgress {
			select {
			case ch <- e:
			default:
			}
			continue
		}
		select {
		case ch <- e:
		case <-time.After(time.Second):
		}
	}
}

func (b *Broadcaster) OnTaskStart(t TaskInfo) {
	b.publish(Event{Type: EventTaskStart, Task: &t})
}

func (b *Broadcaster) OnProgress(p Progress) {
	b.publish(Event{Type: EventProgress, Progress: &p})
}

func (b *Broadcaster) OnTaskDone(t TaskInfo) {
	b.publish(Event{Type: EventTaskDone, Task: &t})
}

func (b *Broadcaster) OnTaskFailed(t TaskInfo, f Failure) {
	b.publish(Event{Type: EventTaskFailed, Task: &t, Failure: &f})
}

func (b *Broadcaster) OnRunDone(s *Summary) {
	b.publish(Event{Type: EventRunDone, Summary: s})
}
