// Package natsrelay connects the rank chain over a NATS server, one worker
// process per rank. Handoff batches travel on one subject per directed
// link; since a link has exactly one publisher, core NATS preserves the
// tick order the protocol requires.
package natsrelay

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/trafficlab/roadsim/log"
	"github.com/trafficlab/roadsim/pkg/transport"
	"github.com/trafficlab/roadsim/pkg/wire"
)

type (
	Relay struct {
		conn   *nats.Conn
		rank   int
		size   int
		prefix string
		l      *log.Logger

		handoffSub *nats.Subscription // inbound link, rank > 0
		arriveSub  *nats.Subscription // barrier arrivals, head only
		releaseSub *nats.Subscription // barrier release, non-head
		statsSub   *nats.Subscription // stats gather, head only
		readySub   *nats.Subscription // startup rendezvous, head only
	}
	Option func(*Relay)
)

func WithLogger(l *log.Logger) Option {
	return func(r *Relay) {
		r.l = l
	}
}

// New sets up all subscriptions for rank and performs a startup rendezvous
// across the whole chain, so that no tick message can be published before
// its subscriber exists.
func New(ctx context.Context, conn *nats.Conn, rank, size int, prefix string,
	opts ...Option,
) (*Relay, error) {
	if size < 2 {
		return nil, fmt.Errorf("it takes at least 2 workers to run the simulation, got %d", size)
	}
	if rank < 0 || rank >= size {
		return nil, fmt.Errorf("rank %d out of range [0,%d)", rank, size)
	}
	ret := &Relay{
		conn:   conn,
		rank:   rank,
		size:   size,
		prefix: prefix,
		l:      log.Default().Named("transport.nats"),
	}
	for _, opt := range opts {
		opt(ret)
	}
	if err := ret.setupSubscriptions(); err != nil {
		return nil, err
	}
	if err := ret.rendezvous(ctx); err != nil {
		return nil, err
	}
	return ret, nil
}

func (r *Relay) subject(parts ...string) string {
	ret := r.prefix
	for _, p := range parts {
		ret += "." + p
	}
	return ret
}

func (r *Relay) setupSubscriptions() error {
	var err error
	if r.rank > 0 {
		inbound := r.subject("handoff", strconv.Itoa(r.rank))
		if r.handoffSub, err = r.conn.SubscribeSync(inbound); err != nil {
			return fmt.Errorf("could not subscribe %s: %w", inbound, err)
		}
		release := r.subject("barrier", "release")
		if r.releaseSub, err = r.conn.SubscribeSync(release); err != nil {
			return fmt.Errorf("could not subscribe %s: %w", release, err)
		}
	} else {
		arrive := r.subject("barrier", "arrive")
		if r.arriveSub, err = r.conn.SubscribeSync(arrive); err != nil {
			return fmt.Errorf("could not subscribe %s: %w", arrive, err)
		}
		statsSubj := r.subject("stats")
		if r.statsSub, err = r.conn.SubscribeSync(statsSubj); err != nil {
			return fmt.Errorf("could not subscribe %s: %w", statsSubj, err)
		}
		ready := r.subject("ready")
		if r.readySub, err = r.conn.SubscribeSync(ready); err != nil {
			return fmt.Errorf("could not subscribe %s: %w", ready, err)
		}
	}
	return r.conn.Flush()
}

// rendezvous blocks until every rank of the chain is subscribed. Non-head
// ranks retry a request against the head until it answers; the head answers
// every request and waits until it has seen all other ranks.
func (r *Relay) rendezvous(ctx context.Context) error {
	ready := r.subject("ready")
	if r.rank > 0 {
		payload := []byte(strconv.Itoa(r.rank))
		for {
			_, err := r.conn.RequestWithContext(ctx, ready, payload)
			if err == nil {
				return nil
			}
			if ctx.Err() != nil {
				return fmt.Errorf("rendezvous aborted: %w", ctx.Err())
			}
			r.l.Debug("head not ready yet, retrying",
				log.Int("rank", r.rank), log.ErrorField(err))
			time.Sleep(250 * time.Millisecond)
		}
	}
	seen := make(map[int]struct{})
	for len(seen) < r.size-1 {
		msg, err := r.readySub.NextMsgWithContext(ctx)
		if err != nil {
			return fmt.Errorf("rendezvous failed: %w", err)
		}
		other, convErr := strconv.Atoi(string(msg.Data))
		if convErr != nil {
			return fmt.Errorf("malformed rendezvous message %q: %w", msg.Data, convErr)
		}
		if respErr := msg.Respond(nil); respErr != nil {
			return fmt.Errorf("rendezvous reply failed: %w", respErr)
		}
		seen[other] = struct{}{}
	}
	r.l.Debug("all workers ready", log.Int("size", r.size))
	return nil
}

func (r *Relay) Recv(ctx context.Context) ([]wire.HandoffRecord, error) {
	if r.rank == 0 {
		return nil, transport.ErrNoLeftNeighbor
	}
	msg, err := r.handoffSub.NextMsgWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("handoff receive failed: %w", err)
	}
	return wire.DecodeBatch(msg.Data)
}

func (r *Relay) Send(_ context.Context, batch []wire.HandoffRecord) error {
	if r.rank == r.size-1 {
		return transport.ErrNoRightNeighbor
	}
	data, err := wire.EncodeBatch(batch)
	if err != nil {
		return err
	}
	return r.conn.Publish(r.subject("handoff", strconv.Itoa(r.rank+1)), data)
}

func (r *Relay) Barrier(ctx context.Context) error {
	if r.rank > 0 {
		if err := r.conn.Publish(r.subject("barrier", "arrive"), nil); err != nil {
			return fmt.Errorf("barrier arrive failed: %w", err)
		}
		if _, err := r.releaseSub.NextMsgWithContext(ctx); err != nil {
			return fmt.Errorf("barrier release wait failed: %w", err)
		}
		return nil
	}
	for i := 1; i < r.size; i++ {
		if _, err := r.arriveSub.NextMsgWithContext(ctx); err != nil {
			return fmt.Errorf("barrier arrival wait failed: %w", err)
		}
	}
	if err := r.conn.Publish(r.subject("barrier", "release"), nil); err != nil {
		return fmt.Errorf("barrier release failed: %w", err)
	}
	return nil
}

func (r *Relay) SendStats(_ context.Context, rec wire.StatRecord) error {
	if r.rank == 0 {
		return transport.ErrNonHeadOnly
	}
	data, err := wire.EncodeStat(rec)
	if err != nil {
		return err
	}
	return r.conn.Publish(r.subject("stats"), data)
}

//nolint:whitespace // editor/linter issue
func (r *Relay) GatherStats(ctx context.Context, own wire.StatRecord) (
	[]wire.StatRecord, error,
) {
	if r.rank != 0 {
		return nil, transport.ErrHeadOnly
	}
	records := make([]wire.StatRecord, 0, r.size)
	records = append(records, own)
	for i := 1; i < r.size; i++ {
		msg, err := r.statsSub.NextMsgWithContext(ctx)
		if err != nil {
			return nil, fmt.Errorf("stats gather failed: %w", err)
		}
		rec, decErr := wire.DecodeStat(msg.Data)
		if decErr != nil {
			return nil, decErr
		}
		records = append(records, rec)
	}
	return records, nil
}

func (r *Relay) Close() {
	for _, sub := range []*nats.Subscription{
		r.handoffSub, r.arriveSub, r.releaseSub, r.statsSub, r.readySub,
	} {
		if sub != nil {
			//nolint:errcheck // shutdown path
			sub.Unsubscribe()
		}
	}
}
