package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

const liveUpdateBufferSize = 16

// LiveUpdate is one event delivered to subscribers of a course.
type LiveUpdate struct {
	CourseID uint            `json:"course_id"`
	Event    string          `json:"event"`
	Payload  json.RawMessage `json:"payload"`
	SentAt   time.Time       `json:"sent_at"`
}

// LiveUpdateService broadcasts course-scoped events to live subscribers.
// Emission is fire-and-forget: a slow or absent subscriber never blocks the
// emitter, and broadcast failures never propagate back into the pipeline.
type LiveUpdateService interface {
	Emit(ctx context.Context, courseID uint, event string, payload interface{})
	Subscribe(courseID uint) (<-chan LiveUpdate, func())
	Start(ctx context.Context)
}

type liveUpdateService struct {
	nats        *nats.Conn
	natsSubject string
	logger      zerolog.Logger
	broker      *liveUpdateBroker
	nodeID      string
}

type liveUpdateEnvelope struct {
	Source string     `json:"source"`
	Update LiveUpdate `json:"update"`
}

type liveUpdateBroker struct {
	mu          sync.RWMutex
	subscribers map[uint]map[chan LiveUpdate]struct{}
}

// NewLiveUpdateService constructs the broadcaster. A nil NATS connection
// limits fanout to in-process subscribers, which is all a single node needs.
func NewLiveUpdateService(natsConn *nats.Conn, subject string, logger zerolog.Logger) LiveUpdateService {
	if subject == "" {
		subject = "kelasku.courses.updates"
	}

	return &liveUpdateService{
		nats:        natsConn,
		natsSubject: subject,
		logger:      logger.With().Str("component", "live_update_service").Logger(),
		broker: &liveUpdateBroker{
			subscribers: make(map[uint]map[chan LiveUpdate]struct{}),
		},
		nodeID: uuid.NewString(),
	}
}

func (s *liveUpdateService) Start(ctx context.Context) {
	if s.nats == nil {
		return
	}

	sub, err := s.nats.Subscribe(s.natsSubject, func(msg *nats.Msg) {
		var envelope liveUpdateEnvelope
		if err := json.Unmarshal(msg.Data, &envelope); err != nil {
			s.logger.Warn().Err(err).Msg("dropping malformed live update from nats")
			return
		}
		if envelope.Source == s.nodeID {
			return
		}
		s.broker.publish(envelope.Update)
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to subscribe to live update subject")
		return
	}

	go func() {
		<-ctx.Done()
		_ = sub.Unsubscribe()
	}()
}

func (s *liveUpdateService) Emit(ctx context.Context, courseID uint, event string, payload interface{}) {
	raw, err := json.Marshal(payload)
	if err != nil {
		s.logger.Warn().Err(err).Str("event", event).Msg("failed to encode live update payload")
		return
	}

	update := LiveUpdate{
		CourseID: courseID,
		Event:    event,
		Payload:  raw,
		SentAt:   time.Now(),
	}

	s.broker.publish(update)

	if s.nats != nil {
		envelope, err := json.Marshal(liveUpdateEnvelope{Source: s.nodeID, Update: update})
		if err == nil {
			if err := s.nats.Publish(s.natsSubject, envelope); err != nil {
				s.logger.Warn().Err(err).Str("event", event).Msg("failed to publish live update to nats")
			}
		}
	}
}

func (s *liveUpdateService) Subscribe(courseID uint) (<-chan LiveUpdate, func()) {
	channel := make(chan LiveUpdate, liveUpdateBufferSize)

	s.broker.mu.Lock()
	if s.broker.subscribers[courseID] == nil {
		s.broker.subscribers[courseID] = make(map[chan LiveUpdate]struct{})
	}
	s.broker.subscribers[courseID][channel] = struct{}{}
	s.broker.mu.Unlock()

	cancel := func() {
		s.broker.mu.Lock()
		if subscribers, ok := s.broker.subscribers[courseID]; ok {
			if _, present := subscribers[channel]; present {
				delete(subscribers, channel)
				close(channel)
			}
			if len(subscribers) == 0 {
				delete(s.broker.subscribers, courseID)
			}
		}
		s.broker.mu.Unlock()
	}

	return channel, cancel
}

func (b *liveUpdateBroker) publish(update LiveUpdate) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for channel := range b.subscribers[update.CourseID] {
		select {
		case channel <- update:
		default:
			// Slow subscriber; drop rather than block the pipeline.
		}
	}
}
