// Package reporting mirrors registry transitions to the call-provider side,
// which keeps the operating system's call UI in sync.
package reporting

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/acme/hotline/internal/domain"
	"github.com/acme/hotline/internal/queue"
)

// Report is what the call provider is told about a call.
type Report string

const (
	ReportIncoming          Report = "incoming_reported"
	ReportOutgoingStarted   Report = "outgoing_started"
	ReportOutgoingConnected Report = "outgoing_connected"
	ReportIncomingAnswered  Report = "incoming_answered"
	ReportEnded             Report = "ended"
)

// Publisher delivers call events.
type Publisher interface {
	PublishEvent(ctx context.Context, msg queue.CallEventMessage) error
}

// Reporter is a registry observer that publishes provider reports.
type Reporter struct {
	publisher Publisher
	newID     func() uuid.UUID
}

// NewReporter constructs a reporter.
func NewReporter(publisher Publisher) *Reporter {
	return &Reporter{publisher: publisher, newID: uuid.New}
}

// ReportFor maps a transition to the provider report, if it needs one.
// Outgoing starts are not reported: the provider learns about them on progress.
// Incoming calls were reported on start, so their progress needs no report.
func ReportFor(ev domain.Event) (Report, bool) {
	switch ev.Kind {
	case domain.EventStarted:
		if ev.Call.Direction == domain.DirectionIncoming {
			return ReportIncoming, true
		}
		return "", false
	case domain.EventProgressed:
		if ev.Call.Direction == domain.DirectionOutgoing {
			return ReportOutgoingStarted, true
		}
		return "", false
	case domain.EventEstablished:
		if ev.Call.Direction == domain.DirectionIncoming {
			return ReportIncomingAnswered, true
		}
		return ReportOutgoingConnected, true
	case domain.EventEnded:
		return ReportEnded, true
	default:
		return "", false
	}
}

// Notify implements registry.Observer.
func (r *Reporter) Notify(ctx context.Context, ev domain.Event) error {
	report, ok := ReportFor(ev)
	if !ok {
		return nil
	}
	if err := r.publisher.PublishEvent(ctx, r.message(ev, report)); err != nil {
		return fmt.Errorf("reporter: publish %s for %s: %w", report, ev.Call.ID, err)
	}
	return nil
}

func (r *Reporter) message(ev domain.Event, report Report) queue.CallEventMessage {
	return queue.CallEventMessage{
		EventID:    r.newID(),
		Seq:        ev.Seq,
		CallID:     ev.Call.ID,
		Handle:     ev.Call.RemoteHandle,
		Direction:  string(ev.Call.Direction),
		Report:     string(report),
		Kind:       string(ev.Kind),
		FromState:  string(ev.From),
		ToState:    string(ev.To),
		StartedAt:  ev.Call.CreatedAt,
		AnsweredAt: ev.Call.AnsweredAt,
		EndedAt:    ev.Call.EndedAt,
		OccurredAt: ev.At,
	}
}
