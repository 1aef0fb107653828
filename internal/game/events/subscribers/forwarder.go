package subscribers

import (
	"encoding/json"
	"strconv"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/rs/zerolog"

	"github.com/mitchelldurbincs/MekEncounter/internal/game/events"
)

// DefaultTopic is the topic committed events are forwarded to
const DefaultTopic = "mekencounter.events"

// Metadata keys set on every forwarded message
const (
	MetaGameID    = "game_id"
	MetaEventType = "event_type"
	MetaSequence  = "seq"
	MetaTxID      = "tx_id"
)

// Forwarder republishes committed events to a watermill publisher as
// JSON-encoded records so out-of-process consumers can follow a session.
type Forwarder struct {
	id     string
	topic  string
	pub    message.Publisher
	logger zerolog.Logger
}

// NewForwarder creates a forwarder publishing to topic. An empty topic means DefaultTopic.
func NewForwarder(id, topic string, pub message.Publisher, logger zerolog.Logger) *Forwarder {
	if topic == "" {
		topic = DefaultTopic
	}
	return &Forwarder{
		id:     id,
		topic:  topic,
		pub:    pub,
		logger: logger.With().Str("subscriber", "watermill_forwarder").Str("topic", topic).Logger(),
	}
}

// NewInMemoryPubSub returns a gochannel pub/sub. A persistent one keeps every
// message and replays it to subscribers that join late.
func NewInMemoryPubSub(logger zerolog.Logger, persistent bool) *gochannel.GoChannel {
	return gochannel.NewGoChannel(
		gochannel.Config{Persistent: persistent, OutputChannelBuffer: 256},
		watermillLogger{logger: logger.With().Str("component", "watermill").Logger()},
	)
}

func (f *Forwarder) ID() string {
	return f.id
}

func (f *Forwarder) Topic() string {
	return f.topic
}

func (f *Forwarder) InterestedIn(events.Type) bool {
	return true
}

// HandleEvent encodes the event and publishes it. Failures are logged; the
// session log stays the source of truth.
func (f *Forwarder) HandleEvent(event events.GameEvent) {
	rec, err := events.Encode(event)
	if err != nil {
		f.logger.Error().Err(err).Int("seq", event.Sequence).Msg("Failed to encode event for forwarding")
		return
	}
	body, err := json.Marshal(rec)
	if err != nil {
		f.logger.Error().Err(err).Int("seq", event.Sequence).Msg("Failed to marshal event record")
		return
	}

	msg := message.NewMessage(watermill.NewUUID(), body)
	msg.Metadata.Set(MetaGameID, event.GameID)
	msg.Metadata.Set(MetaEventType, rec.Type)
	msg.Metadata.Set(MetaSequence, strconv.Itoa(event.Sequence))
	msg.Metadata.Set(MetaTxID, event.TxID)

	if err := f.pub.Publish(f.topic, msg); err != nil {
		f.logger.Error().Err(err).
			Str("game_id", event.GameID).
			Int("seq", event.Sequence).
			Msg("Failed to forward event")
	}
}

// DecodeMessage turns a forwarded message back into an event
func DecodeMessage(msg *message.Message) (events.GameEvent, error) {
	var rec events.Record
	if err := json.Unmarshal(msg.Payload, &rec); err != nil {
		return events.GameEvent{}, err
	}
	return events.Decode(rec)
}

// watermillLogger adapts zerolog to watermill.LoggerAdapter
type watermillLogger struct {
	logger zerolog.Logger
}

func (l watermillLogger) Error(msg string, err error, fields watermill.LogFields) {
	l.logger.Error().Err(err).Fields(map[string]interface{}(fields)).Msg(msg)
}

func (l watermillLogger) Info(msg string, fields watermill.LogFields) {
	l.logger.Info().Fields(map[string]interface{}(fields)).Msg(msg)
}

func (l watermillLogger) Debug(msg string, fields watermill.LogFields) {
	l.logger.Debug().Fields(map[string]interface{}(fields)).Msg(msg)
}

func (l watermillLogger) Trace(msg string, fields watermill.LogFields) {
	l.logger.Trace().Fields(map[string]interface{}(fields)).Msg(msg)
}

func (l watermillLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return watermillLogger{logger: l.logger.With().Fields(map[string]interface{}(fields)).Logger()}
}
