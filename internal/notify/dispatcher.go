package notify

import (
	"context"

	"go.uber.org/zap"
)

type Transport interface {
	Deliver(ctx context.Context, msg Message) error
}

type Report struct {
	Sent   int
	Failed int
}

type Dispatcher struct {
	transport Transport
	logger    *zap.Logger
}

func NewDispatcher(transport Transport, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{transport: transport, logger: logger}
}

// Dispatch delivers messages in order. A failed delivery is logged and
// counted; it never stops the remaining deliveries.
func (d *Dispatcher) Dispatch(ctx context.Context, msgs []Message) Report {
	var rep Report
	for _, m := range msgs {
		if err := ctx.Err(); err != nil {
			rep.Failed++
			continue
		}
		if err := d.transport.Deliver(ctx, m); err != nil {
			rep.Failed++
			d.logger.Warn("notification delivery failed",
				zap.Int64("recipient", m.Recipient),
				zap.String("kind", string(m.Kind)),
				zap.String("collection_id", m.CollectionID),
				zap.Error(err),
			)
			continue
		}
		rep.Sent++
	}
	if rep.Failed > 0 {
		d.logger.Info("notification batch finished with failures",
			zap.Int("sent", rep.Sent),
			zap.Int("failed", rep.Failed),
		)
	}
	return rep
}
