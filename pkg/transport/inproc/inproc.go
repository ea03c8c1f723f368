// Package inproc runs the whole rank chain inside one process: the links
// between adjacent ranks are plain buffered channels. Mainly used by the
// run command and by tests.
package inproc

import (
	"context"
	"fmt"
	"sync"

	"github.com/trafficlab/roadsim/pkg/transport"
	"github.com/trafficlab/roadsim/pkg/wire"
)

// Network owns the channels of one rank chain. Create it once, then hand
// each rank its Conn.
type Network struct {
	size    int
	links   []chan []wire.HandoffRecord
	statsCh chan wire.StatRecord
	barrier *sync.WaitGroup
}

func NewNetwork(size int) (*Network, error) {
	if size < 2 {
		return nil, fmt.Errorf("it takes at least 2 workers to run the simulation, got %d", size)
	}
	links := make([]chan []wire.HandoffRecord, size-1)
	for i := range links {
		// one batch in flight per link, the sender does not wait for the
		// receiver to drain it
		links[i] = make(chan []wire.HandoffRecord, 1)
	}
	barrier := &sync.WaitGroup{}
	barrier.Add(size)
	return &Network{
		size:    size,
		links:   links,
		statsCh: make(chan wire.StatRecord, size),
		barrier: barrier,
	}, nil
}

// Conn returns rank's view of the network.
func (n *Network) Conn(rank int) (transport.Conn, error) {
	if rank < 0 || rank >= n.size {
		return nil, fmt.Errorf("rank %d out of range [0,%d)", rank, n.size)
	}
	return &conn{net: n, rank: rank}, nil
}

type conn struct {
	net  *Network
	rank int
}

func (c *conn) Recv(ctx context.Context) ([]wire.HandoffRecord, error) {
	if c.rank == 0 {
		return nil, transport.ErrNoLeftNeighbor
	}
	select {
	case batch := <-c.net.links[c.rank-1]:
		return batch, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *conn) Send(ctx context.Context, batch []wire.HandoffRecord) error {
	if c.rank == c.net.size-1 {
		return transport.ErrNoRightNeighbor
	}
	select {
	case c.net.links[c.rank] <- batch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *conn) Barrier(ctx context.Context) error {
	c.net.barrier.Done()
	released := make(chan struct{})
	go func() {
		c.net.barrier.Wait()
		close(released)
	}()
	select {
	case <-released:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *conn) SendStats(ctx context.Context, rec wire.StatRecord) error {
	if c.rank == 0 {
		return transport.ErrNonHeadOnly
	}
	select {
	case c.net.statsCh <- rec:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

//nolint:whitespace // editor/linter issue
func (c *conn) GatherStats(ctx context.Context, own wire.StatRecord) (
	[]wire.StatRecord, error,
) {
	if c.rank != 0 {
		return nil, transport.ErrHeadOnly
	}
	records := make([]wire.StatRecord, 0, c.net.size)
	records = append(records, own)
	for i := 1; i < c.net.size; i++ {
		select {
		case rec := <-c.net.statsCh:
			records = append(records, rec)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return records, nil
}

// Close is a no-op, channel lifetime is tied to the network.
func (c *conn) Close() {}
