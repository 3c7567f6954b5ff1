package app

import (
	"fmt"

	"github.com/brensch/nomenclator/internal/orchestrator"
)

// JobStartedMsg is sent when a job begins parsing.
type JobStartedMsg struct {
	Name string
}

// JobFinishedMsg is sent when a job reaches a final state.
type JobFinishedMsg struct {
	Result orchestrator.JobResult
}

// RunFinishedMsg ends the view.
type RunFinishedMsg struct {
	Report *orchestrator.Report
	Err    error
}

func (j JobStartedMsg) String() string  { return fmt.Sprintf("JobStarted %s", j.Name) }
func (j JobFinishedMsg) String() string { return fmt.Sprintf("JobFinished %s: %s", j.Result.Name, j.Result.Status) }
func (r RunFinishedMsg) String() string { return "RunFinished" }

// channelObserver forwards orchestrator callbacks to the UI. Sends give up
// once stop is closed so jobs never block on a view that has exited.
type channelObserver struct {
	ch   chan<- any
	stop <-chan struct{}
}

func (o *channelObserver) send(msg any) {
	select {
	case o.ch <- msg:
	case <-o.stop:
	}
}

func (o *channelObserver) JobStarted(name, _ string) { o.send(JobStartedMsg{Name: name}) }

func (o *channelObserver) JobFinished(res orchestrator.JobResult) {
	o.send(JobFinishedMsg{Result: res})
}
