package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"github.com/jordangarrison/vitals/internal/events"
)

type stubProducer struct {
	mu     sync.Mutex
	err    error
	writes []writtenBatch
}

type writtenBatch struct {
	topic    string
	messages []kafka.Message
}

func (s *stubProducer) WriteMessages(_ context.Context, topic string, msgs ...kafka.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return s.err
	}
	copied := make([]kafka.Message, len(msgs))
	copy(copied, msgs)
	s.writes = append(s.writes, writtenBatch{topic: topic, messages: copied})
	return nil
}

type stubRegistry struct {
	mu    sync.Mutex
	id    int
	err   error
	calls []string
}

func (s *stubRegistry) EnsureSchema(_ context.Context, subject string, _ string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, subject)
	if s.err != nil {
		return 0, s.err
	}
	return s.id, nil
}

func importMessage(t *testing.T, eventID int64, ownerID string) Message {
	t.Helper()
	payload, err := json.Marshal(events.ImportCompleted{
		ImportID:        "a6f1d7c2-0b3e-4c5d-9e8f-1a2b3c4d5e6f",
		OwnerID:         ownerID,
		SourceType:      "apple-health",
		SourceFile:      "export.xml",
		RecordsImported: 42,
		Status:          "success",
		ImportedAt:      time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	})
	require.NoError(t, err)
	return Message{
		EventID:       eventID,
		OwnerID:       ownerID,
		AggregateType: "import",
		AggregateID:   "a6f1d7c2-0b3e-4c5d-9e8f-1a2b3c4d5e6f",
		EventType:     events.ImportCompletedType,
		Topic:         events.ImportCompletedTopic,
		SchemaSubject: "import_events-value",
		PartitionKey:  ownerID,
		Payload:       payload,
	}
}

func TestDeliverFramesPayloadAndSetsHeaders(t *testing.T) {
	producer := &stubProducer{}
	registry := &stubRegistry{id: 42}
	d := &Dispatcher{producer: producer, registry: registry}

	msgs := []Message{importMessage(t, 1, "owner-a"), importMessage(t, 2, "owner-b")}
	require.NoError(t, d.deliver(context.Background(), msgs))

	require.Len(t, producer.writes, 1)
	require.Equal(t, events.ImportCompletedTopic, producer.writes[0].topic)
	require.Len(t, producer.writes[0].messages, 2)
	require.Len(t, registry.calls, 1, "schema id is cached per subject")

	record := producer.writes[0].messages[1]
	require.Equal(t, []byte("owner-b"), record.Key)

	id, payload, err := DecodeWireFormat(record.Value)
	require.NoError(t, err)
	require.Equal(t, 42, id)
	require.JSONEq(t, string(msgs[1].Payload), string(payload))

	headers := make(map[string]string)
	for _, h := range record.Headers {
		headers[h.Key] = string(h.Value)
	}
	require.Equal(t, events.ImportCompletedType, headers[events.HeaderEventType])
	require.Equal(t, "owner-b", headers[events.HeaderOwnerID])
	require.Equal(t, "import_events-value", headers[events.HeaderSchemaSubject])
}

func TestDeliverRejectsUnknownEventTypeBeforeWriting(t *testing.T) {
	producer := &stubProducer{}
	registry := &stubRegistry{id: 1}
	d := &Dispatcher{producer: producer, registry: registry}

	unknown := importMessage(t, 2, "owner-a")
	unknown.EventType = "import.unknown"

	err := d.deliver(context.Background(), []Message{importMessage(t, 1, "owner-a"), unknown})
	require.ErrorContains(t, err, "no schema metadata for event_type=import.unknown")
	require.Empty(t, producer.writes)
}

func TestDeliverSurfacesRegistryAndProducerErrors(t *testing.T) {
	d := &Dispatcher{producer: &stubProducer{}, registry: &stubRegistry{err: errors.New("registry down")}}
	require.ErrorContains(t, d.deliver(context.Background(), []Message{importMessage(t, 1, "o")}), "registry down")

	d = &Dispatcher{producer: &stubProducer{err: errors.New("broker unavailable")}, registry: &stubRegistry{id: 3}}
	err := d.deliver(context.Background(), []Message{importMessage(t, 1, "o")})
	require.ErrorContains(t, err, "write import_events: broker unavailable")
}

func TestWireFormatRoundTrip(t *testing.T) {
	frame := encodeWireFormat(258, []byte(`{"a":1}`))
	require.Equal(t, []byte{0, 0, 0, 1, 2}, frame[:5])

	id, payload, err := DecodeWireFormat(frame)
	require.NoError(t, err)
	require.Equal(t, 258, id)
	require.Equal(t, `{"a":1}`, string(payload))

	_, _, err = DecodeWireFormat([]byte{1, 0, 0, 0, 1})
	require.Error(t, err)
	_, _, err = DecodeWireFormat([]byte{0, 1})
	require.Error(t, err)
}

func TestBackoffDelayDoublesAndCaps(t *testing.T) {
	m := &DLQManager{baseDelay: time.Minute}
	require.Equal(t, time.Minute, m.backoffDelay(1))
	require.Equal(t, 2*time.Minute, m.backoffDelay(2))
	require.Equal(t, 16*time.Minute, m.backoffDelay(5))
	require.Equal(t, time.Hour, m.backoffDelay(7))
	require.Equal(t, time.Hour, m.backoffDelay(64))
}

func TestSchemaRegistryRegistersMissingSubject(t *testing.T) {
	var registered string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/subjects/import_events-value/versions/latest":
			http.Error(w, `{"error_code":40401}`, http.StatusNotFound)
		case r.Method == http.MethodPost && r.URL.Path == "/subjects/import_events-value/versions":
			var body struct {
				SchemaType string `json:"schemaType"`
				Schema     string `json:"schema"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			require.Equal(t, "JSON", body.SchemaType)
			registered = body.Schema
			_, _ = w.Write([]byte(`{"id":7}`))
		default:
			http.Error(w, "unexpected", http.StatusTeapot)
		}
	}))
	defer srv.Close()

	client := NewSchemaRegistryClient(srv.URL + "/")
	id, err := client.EnsureSchema(context.Background(), "import_events-value", importCompletedSchema)
	require.NoError(t, err)
	require.Equal(t, 7, id)
	require.JSONEq(t, importCompletedSchema, registered)
}

func TestSchemaRegistryPropagatesServerErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewSchemaRegistryClient(srv.URL).EnsureSchema(context.Background(), "s", "{}")
	require.ErrorContains(t, err, "500")
	require.NotErrorIs(t, err, ErrSubjectNotFound)
}
