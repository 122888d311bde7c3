package dispatch

import (
	"sync"
	"time"

	"github.com/cyverse-de/helpdesk-notifier/model"
)

// Status is the result of one channel attempt.
type Status string

const (
	StatusDelivered Status = "delivered"
	StatusSkipped   Status = "skipped"
	StatusFailed    Status = "failed"
)

// ChannelResult describes what happened on one channel during a dispatch.
type ChannelResult struct {
	Channel model.Channel
	Status  Status
	Reason  string
	Err     error
	Elapsed time.Duration
}

// Outcome collects the per-channel results of a single dispatch. The in-app result is available as soon as
// Dispatch returns; external channel results are available once Wait returns.
type Outcome struct {
	Event        model.Event
	Notification *model.Notification

	// Err is set when the event was rejected before any channel was attempted.
	Err error

	wg      sync.WaitGroup
	mu      sync.Mutex
	results map[model.Channel]ChannelResult
}

func newOutcome(event model.Event) *Outcome {
	return &Outcome{Event: event, results: make(map[model.Channel]ChannelResult)}
}

func (o *Outcome) record(result ChannelResult) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.results[result.Channel] = result
}

// Wait blocks until every channel attempt has finished and returns the results keyed by channel.
func (o *Outcome) Wait() map[model.Channel]ChannelResult {
	o.wg.Wait()

	o.mu.Lock()
	defer o.mu.Unlock()
	results := make(map[model.Channel]ChannelResult, len(o.results))
	for channel, result := range o.results {
		results[channel] = result
	}
	return results
}
