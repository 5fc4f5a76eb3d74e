package bus

import (
	"context"

	"github.com/agentdb/memory/pkg/natsutil"
	"github.com/nats-io/nats.go"
)

// wireEvent is the JSON form published to NATS; Data is carried as-is
// since natsutil.Publish marshals the whole value.
type wireEvent struct {
	Kind    Kind           `json:"kind"`
	Subject string         `json:"subject"`
	Data    map[string]any `json:"data"`
}

// NATSFanout mirrors every bus.Publish onto a NATS subject per event kind
// (`agentdb.events.<kind>`), so external observers can subscribe without
// holding an in-process handle to the Bus (SPEC_FULL.md "optional NATS
// fan-out"). Grounded on pkg/natsutil's generic Publish/Subscribe.
type NATSFanout struct {
	nc *nats.Conn
}

// NewNATSFanout attaches a fan-out to an already-connected NATS client.
func NewNATSFanout(nc *nats.Conn) *NATSFanout {
	return &NATSFanout{nc: nc}
}

// Attach subscribes f to b and republishes every event onto NATS.
func (f *NATSFanout) Attach(b *Bus) int {
	return b.Subscribe("", func(e Event) {
		_ = natsutil.Publish(context.Background(), f.nc, subjectFor(e.Kind), wireEvent{
			Kind:    e.Kind,
			Subject: e.Subject,
			Data:    e.Data,
		})
	})
}

// SubscribeRemote listens on the NATS subject for kind and invokes handler
// for each event received from any process publishing via Attach.
func SubscribeRemote(nc *nats.Conn, kind Kind, handler Handler) (*nats.Subscription, error) {
	return natsutil.Subscribe[wireEvent](nc, subjectFor(kind), func(_ context.Context, w wireEvent) {
		handler(Event{Kind: w.Kind, Subject: w.Subject, Data: w.Data})
	})
}

func subjectFor(kind Kind) string {
	return "agentdb.events." + string(kind)
}
