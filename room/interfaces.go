package room

import (
	"context"
	"time"

	"github.com/wfunc/codechallenge/models"
)

// Broadcaster receives every snapshot a room publishes. Publish must not block.
// This is defined here to break the import cycle between room and broadcast.
type Broadcaster interface {
	Publish(snapshot Snapshot)
}

// ResultRecorder stores finished rounds. It is called off the room's loop.
type ResultRecorder interface {
	RecordRound(ctx context.Context, record *models.RoundRecord) error
}

// Observer is told about room activity, for metrics.
type Observer interface {
	MoveAccepted()
	RoundFinished(outcome string)
	PlayerRemoved(reason string)
}

// Scheduler delays turn prompts when a turn delay is set.
type Scheduler interface {
	AddTimer(delay time.Duration, interval time.Duration, callback func()) int64
	RemoveTimer(timerId int64) bool
}

type nopBroadcaster struct{}

func (nopBroadcaster) Publish(Snapshot) {}

type nopObserver struct{}

func (nopObserver) MoveAccepted()        {}
func (nopObserver) RoundFinished(string) {}
func (nopObserver) PlayerRemoved(string) {}
