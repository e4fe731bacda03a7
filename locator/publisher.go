package locator

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

// EstimateMessage is the retained payload published after every cycle
type EstimateMessage struct {
	Session   string  `json:"session"`
	Tag       string  `json:"tag"`
	Cycle     int     `json:"cycle"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Valid     bool    `json:"valid"`
	Confident bool    `json:"confident"`
	Agent     Pose    `json:"agent"`
	Timestamp int64   `json:"timestamp"`
}

// Publisher publishes filter estimates to MQTT
type Publisher struct {
	client        mqtt.Client
	publishPrefix string
	tagID         string
	session       string
	qos           byte
	retain        bool

	mu   sync.RWMutex
	last *EstimateMessage
}

// NewPublisher creates an estimate publisher. The topic prefix comes from
// MQTT_PUBLISH_PREFIX, then prefix.
func NewPublisher(client mqtt.Client, prefix, tagID string) *Publisher {
	prefix = firstNonEmpty(os.Getenv("MQTT_PUBLISH_PREFIX"), prefix, "uwbloc")
	return &Publisher{
		client:        client,
		publishPrefix: prefix,
		tagID:         tagID,
		session:       uuid.NewString(),
		qos:           0,
		retain:        true,
	}
}

// Topic returns the estimate topic
func (p *Publisher) Topic() string {
	return fmt.Sprintf("%s/%s/estimate", p.publishPrefix, p.tagID)
}

// Session returns the id stamped on every message from this process
func (p *Publisher) Session() string {
	return p.session
}

// PublishEstimate publishes the estimate of one cycle
func (p *Publisher) PublishEstimate(r CycleResult) error {
	msg := &EstimateMessage{
		Session:   p.session,
		Tag:       p.tagID,
		Cycle:     r.Cycle,
		X:         r.Estimate.X,
		Y:         r.Estimate.Y,
		Valid:     r.Estimate.Valid,
		Confident: r.Estimate.Confident,
		Agent:     Pose{X: r.Agent.X, Y: r.Agent.Y, Heading: r.Agent.Heading},
		Timestamp: r.Timestamp.Unix(),
	}

	p.mu.Lock()
	p.last = msg
	p.mu.Unlock()

	if p.client == nil || !p.client.IsConnected() {
		return fmt.Errorf("MQTT client not connected")
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshaling estimate: %w", err)
	}

	topic := p.Topic()
	token := p.client.Publish(topic, p.qos, p.retain, payload)
	if token.WaitTimeout(2*time.Second) && token.Error() != nil {
		return fmt.Errorf("publishing to %s: %w", topic, token.Error())
	}
	return nil
}

// ObserveCycle publishes every cycle, logging failures
func (p *Publisher) ObserveCycle(r CycleResult) {
	if err := p.PublishEstimate(r); err != nil {
		log.Printf("[MQTT] Error publishing estimate for cycle %d: %v", r.Cycle, err)
	}
}

// Last returns a copy of the most recent message, published or not
func (p *Publisher) Last() (EstimateMessage, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.last == nil {
		return EstimateMessage{}, false
	}
	return *p.last, true
}
