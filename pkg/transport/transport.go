// Package transport abstracts the ordered point-to-point channels between
// adjacent worker ranks. The driver only sees this interface, so the same
// tick loop runs over in-process queues and over NATS without protocol
// changes.
package transport

import (
	"context"
	"errors"

	"github.com/trafficlab/roadsim/pkg/wire"
)

// Conn is one rank's view of the pipeline. Recv blocks until the left
// neighbor's batch for the current tick arrives; Send hands the outbound
// batch to the right neighbor and may not block on the receiver draining it.
// Exactly one batch flows per tick per directed link, in tick order.
type Conn interface {
	// Recv returns the inbound handoff batch from the left neighbor.
	// Must not be called on the head rank.
	Recv(ctx context.Context) ([]wire.HandoffRecord, error)
	// Send delivers the outbound batch to the right neighbor.
	// Must not be called on the tail rank.
	Send(ctx context.Context, batch []wire.HandoffRecord) error
	// Barrier blocks until every rank reached it.
	Barrier(ctx context.Context) error
	// SendStats delivers this rank's sample to the head. Non-head ranks only.
	SendStats(ctx context.Context, rec wire.StatRecord) error
	// GatherStats collects the samples of all other ranks and returns them
	// together with own. Head rank only.
	GatherStats(ctx context.Context, own wire.StatRecord) ([]wire.StatRecord, error)
	Close()
}

var (
	ErrNoLeftNeighbor  = errors.New("rank has no left neighbor")
	ErrNoRightNeighbor = errors.New("rank has no right neighbor")
	ErrHeadOnly        = errors.New("operation is restricted to the head rank")
	ErrNonHeadOnly     = errors.New("operation is restricted to non-head ranks")
)
