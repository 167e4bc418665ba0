package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/covault/covault/internal/logging"
)

// SubjectPrefix is the root of every published subject. The full subject is
// "<prefix>.<entity>.<action>".
const SubjectPrefix = "covault"

// Nats publishes events as JSON messages on a NATS connection.
type Nats struct {
	nc     *nats.Conn
	logger logging.Logger
}

// NewNats dials the NATS server at the given URL.
func NewNats(url string, logger logging.Logger) (*Nats, error) {
	nc, err := nats.Connect(url,
		nats.Name("covault-notify"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Nats{nc: nc, logger: logger}, nil
}

func (n *Nats) Dispatch(ctx context.Context, ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		n.logger.Error(ctx, "notify: marshal event", "error", err)
		return
	}
	subject := fmt.Sprintf("%s.%s.%s", SubjectPrefix, ev.Entity, ev.Action)
	if err := n.nc.Publish(subject, data); err != nil {
		n.logger.Error(ctx, "notify: publish", "subject", subject, "error", err)
	}
}

// Close drains and shuts down the connection.
func (n *Nats) Close() {
	if n.nc != nil {
		n.nc.Close()
	}
}
