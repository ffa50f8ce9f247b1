package bus

import (
	"encoding/json"
	"log/slog"

	"github.com/loqalabs/codecbench/internal/engine"
	"github.com/loqalabs/codecbench/internal/protocol"
)

// Conn is the subset of *nats.Conn the publisher needs.
type Conn interface {
	Publish(subject string, data []byte) error
}

// Publisher forwards engine events to NATS as protocol.ProgressEvent JSON on
// "<prefix>.<kind>". Publish failures are logged and dropped.
type Publisher struct {
	conn   Conn
	prefix string
	log    *slog.Logger
}

func NewPublisher(conn Conn, prefix string, log *slog.Logger) *Publisher {
	if prefix == "" {
		prefix = protocol.SubjectProgressPrefix
	}
	return &Publisher{conn: conn, prefix: prefix, log: log.With(slog.String("component", "progress-publisher"))}
}

func (p *Publisher) Observe(ev engine.Event) {
	msg := ToProgress(ev)
	data, err := json.Marshal(msg)
	if err != nil {
		p.log.Warn("failed to marshal progress event", slogError(err))
		return
	}
	if err := p.conn.Publish(p.prefix+"."+msg.Kind, data); err != nil {
		p.log.Warn("failed to publish progress event", slogError(err))
	}
}

// ToProgress flattens an engine event into its wire form.
func ToProgress(ev engine.Event) protocol.ProgressEvent {
	msg := protocol.ProgressEvent{
		Kind:         string(ev.Kind),
		RunID:        ev.RunID,
		Timestamp:    ev.Time,
		Group:        ev.Group,
		PayloadIndex: ev.PayloadIndex,
		CaseIndex:    ev.CaseIndex,
	}
	if ev.TestCase != nil {
		msg.Noise = ev.TestCase.Name
		msg.Params = ev.TestCase.ParamString
		msg.Difficulty = ev.TestCase.Difficulty.String()
	} else if ev.Kind == engine.EventRecord {
		msg.Noise = "clean"
	}
	if ev.Record != nil {
		msg.Decoded = ev.Record.Decoded
		msg.Similarity = ev.Record.Similarity
		msg.Success = ev.Record.Success
		msg.Error = ev.Record.Err
	}
	if ev.Trial != nil {
		msg.Total = ev.Trial.Attempts()
		msg.Successful = ev.Trial.Successes()
	}
	if ev.GroupResult != nil {
		msg.Total = ev.GroupResult.TotalTests
		msg.Successful = ev.GroupResult.SuccessfulTests
		msg.SuccessRate = ev.GroupResult.SuccessRate
	}
	if ev.Results != nil && (ev.Kind == engine.EventRunCompleted || ev.Kind == engine.EventRunInterrupted) {
		msg.Total, msg.Successful = ev.Results.Totals()
		if msg.Total > 0 {
			msg.SuccessRate = float64(msg.Successful) / float64(msg.Total)
		}
		msg.Interrupted = ev.Results.Interrupted
	}
	return msg
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
