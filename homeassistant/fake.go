package homeassistant

import (
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// PublishedMessage is a message recorded by FakeMqtt.
type PublishedMessage struct {
	Topic    string
	Retained bool
	Payload  string
}

// FakeMqtt is an in-memory mqtt.Client for tests.
type FakeMqtt struct {
	mu        sync.Mutex
	Published []PublishedMessage
	handlers  map[string]mqtt.MessageHandler

	// PublishError, if set, is returned by every publish token.
	PublishError error

	// Connected controls IsConnected.
	Connected bool
}

func NewFakeMqtt() *FakeMqtt {
	return &FakeMqtt{handlers: map[string]mqtt.MessageHandler{}, Connected: true}
}

// Deliver invokes the handler subscribed to topic, if any, and reports
// whether there was one.
func (f *FakeMqtt) Deliver(topic, payload string) bool {
	f.mu.Lock()
	handler, ok := f.handlers[topic]
	f.mu.Unlock()

	if !ok {
		return false
	}

	handler(f, &fakeMessage{topic: topic, payload: []byte(payload)})
	return true
}

// Last returns the most recent payload published to topic.
func (f *FakeMqtt) Last(topic string) (PublishedMessage, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i := len(f.Published) - 1; i >= 0; i-- {
		if f.Published[i].Topic == topic {
			return f.Published[i], true
		}
	}
	return PublishedMessage{}, false
}

// Subscribed reports whether a handler is registered for topic.
func (f *FakeMqtt) Subscribed(topic string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	_, ok := f.handlers[topic]
	return ok
}

func (f *FakeMqtt) IsConnected() bool      { return f.Connected }
func (f *FakeMqtt) IsConnectionOpen() bool { return f.Connected }
func (f *FakeMqtt) Connect() mqtt.Token    { return &fakeToken{} }
func (f *FakeMqtt) Disconnect(uint)        { f.Connected = false }

func (f *FakeMqtt) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.PublishError != nil {
		return &fakeToken{err: f.PublishError}
	}

	var body string
	switch p := payload.(type) {
	case string:
		body = p
	case []byte:
		body = string(p)
	default:
		body = fmt.Sprintf("%v", p)
	}

	f.Published = append(f.Published, PublishedMessage{Topic: topic, Retained: retained, Payload: body})
	return &fakeToken{}
}

func (f *FakeMqtt) Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.handlers[topic] = callback
	return &fakeToken{}
}

func (f *FakeMqtt) SubscribeMultiple(filters map[string]byte, callback mqtt.MessageHandler) mqtt.Token {
	for topic, qos := range filters {
		f.Subscribe(topic, qos, callback)
	}
	return &fakeToken{}
}

func (f *FakeMqtt) Unsubscribe(topics ...string) mqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, topic := range topics {
		delete(f.handlers, topic)
	}
	return &fakeToken{}
}

func (f *FakeMqtt) AddRoute(topic string, callback mqtt.MessageHandler) {
	f.Subscribe(topic, 0, callback)
}

func (f *FakeMqtt) OptionsReader() mqtt.ClientOptionsReader {
	return mqtt.ClientOptionsReader{}
}

type fakeToken struct {
	err error
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Error() error                   { return t.err }

func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return 0 }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return 0 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}
