package bus

import (
	"encoding/json"
	"log/slog"

	"github.com/caretalk-labs/caretalk-core/internal/protocol"
)

// Publisher broadcasts pipeline events. Publishing is fire-and-forget; a
// failed publish is logged and never fails the operation that produced it.
type Publisher struct {
	client *Client
}

func NewPublisher(client *Client) *Publisher {
	return &Publisher{client: client}
}

func (p *Publisher) PublishTurn(evt protocol.TurnCommitted) {
	p.publish(protocol.SubjectTurnCommitted, evt)
}

func (p *Publisher) PublishInstruction(evt protocol.InstructionSent) {
	p.publish(protocol.SubjectInstructionSent, evt)
}

func (p *Publisher) PublishSOAPNote(evt protocol.SOAPNoteCreated) {
	p.publish(protocol.SubjectSOAPNoteCreated, evt)
}

func (p *Publisher) publish(subject string, evt any) {
	if p == nil || p.client == nil || p.client.conn == nil {
		return
	}
	data, err := json.Marshal(evt)
	if err != nil {
		p.client.log.Warn("failed to encode event", slog.String("subject", subject), slog.String("error", err.Error()))
		return
	}
	if err := p.client.conn.Publish(subject, data); err != nil {
		p.client.log.Warn("failed to publish event", slog.String("subject", subject), slog.String("error", err.Error()))
	}
}
