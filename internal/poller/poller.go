// Package poller consumes authentication events from Kafka and forwards them
// to the per-session controllers. The auth service publishes one event per
// login, registration, or logout; the storefront reacts by starting or
// tearing down the account sync for that session.
package poller

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/fjod/go_storefront/internal/session"
)

const (
	topic   = "auth-events"
	groupID = "storefront-bff"
)

// AuthEventMessage is the Kafka payload shape published by the auth service.
type AuthEventMessage struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	EventType string `json:"event_type"`
}

// messageReader is what the poller needs from kafka.Reader.
type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// Sessions routes auth events to per-session controllers; *session.Manager fits.
type Sessions interface {
	Dispatch(id string, event session.AuthEvent)
}

type Poller struct {
	sessions Sessions
	reader   messageReader
	log      logrus.FieldLogger
}

func NewPoller(sessions Sessions, log logrus.FieldLogger, brokers ...string) *Poller {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MaxBytes: 10e6, // 10MB
	})
	return &Poller{sessions, reader, log}
}

func (p *Poller) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		p.processMessage(ctx)
	}
}

func (p *Poller) Close() {
	if err := p.reader.Close(); err != nil {
		p.log.WithError(err).Error("error closing kafka reader")
	}
}

func (p *Poller) processMessage(ctx context.Context) {
	m, err := p.reader.ReadMessage(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		p.log.WithError(err).Error("error reading message")
		return
	}

	var event AuthEventMessage
	if err := json.Unmarshal(m.Value, &event); err != nil {
		p.log.WithError(err).Error("error parsing message")
		return
	}
	if event.SessionID == "" {
		p.log.Warn("missing session_id, skipping")
		return
	}

	authEvent := session.AuthEvent(event.EventType)
	switch authEvent {
	case session.LoginSucceeded, session.RegisterSucceeded, session.LogoutRequested:
	default:
		p.log.WithField("event_type", event.EventType).Warn("unknown auth event, skipping")
		return
	}

	p.sessions.Dispatch(event.SessionID, authEvent)
	p.log.WithFields(logrus.Fields{
		"session":    event.SessionID,
		"event_type": event.EventType,
	}).Info("auth event dispatched")
}
