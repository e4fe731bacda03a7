package locator

import (
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// PayloadHandler receives raw uplink payloads for a tag
type PayloadHandler func(tagID string, payload []byte)

// MQTTClient manages the broker connection and the tag uplink subscription
type MQTTClient struct {
	client      mqtt.Client
	config      *Config
	handler     PayloadHandler
	isConnected bool
	mu          sync.RWMutex
}

// InitMQTT connects to the broker named by MQTT_BROKER or the config file.
// It returns a nil client when no broker is configured.
func InitMQTT(config *Config, handler PayloadHandler) (*MQTTClient, error) {
	broker := os.Getenv("MQTT_BROKER")
	if broker == "" && config != nil {
		broker = config.MQTT.Broker
	}
	if broker == "" {
		log.Println("[MQTT] Disabled: MQTT_BROKER not set")
		return nil, nil
	}
	if config == nil || config.Tag.ID == "" {
		return nil, fmt.Errorf("MQTT enabled but no tag configured")
	}

	c := &MQTTClient{config: config, handler: handler}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(firstNonEmpty(os.Getenv("MQTT_CLIENT_ID"), config.MQTT.ClientID, "uwbloc"))

	if username := firstNonEmpty(os.Getenv("MQTT_USERNAME"), config.MQTT.Username); username != "" {
		opts.SetUsername(username)
		opts.SetPassword(firstNonEmpty(os.Getenv("MQTT_PASSWORD"), config.MQTT.Password))
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetCleanSession(true)
	opts.SetOrderMatters(false)

	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(c.onConnectionLost)
	opts.SetReconnectingHandler(func(mqtt.Client, *mqtt.ClientOptions) {
		log.Println("[MQTT] Reconnecting...")
	})

	c.client = mqtt.NewClient(opts)
	go c.connectWithRetry()

	return c, nil
}

// connectWithRetry dials the broker with exponential backoff until it succeeds
func (c *MQTTClient) connectWithRetry() {
	delay := time.Second
	const maxDelay = 60 * time.Second

	for {
		log.Println("[MQTT] Connecting to broker...")
		token := c.client.Connect()
		if token.WaitTimeout(10 * time.Second) {
			if token.Error() == nil {
				log.Println("[MQTT] Connected")
				c.setConnected(true)
				return
			}
			log.Printf("[MQTT] Connection failed: %v", token.Error())
		} else {
			log.Println("[MQTT] Connection timeout")
		}

		log.Printf("[MQTT] Retrying in %v", delay)
		time.Sleep(delay)
		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
}

// onConnect subscribes to the tag uplink; it runs on every (re)connect
func (c *MQTTClient) onConnect(client mqtt.Client) {
	c.setConnected(true)

	topic := c.config.TagTopic()
	log.Printf("[MQTT] Subscribing to %s for tag %s", topic, c.config.Tag.ID)
	token := client.Subscribe(topic, 0, c.uplinkHandler(c.config.Tag.ID))
	if token.WaitTimeout(5*time.Second) && token.Error() != nil {
		log.Printf("[MQTT] Error subscribing to %s: %v", topic, token.Error())
		return
	}
	log.Printf("[MQTT] Subscribed to %s", topic)
}

func (c *MQTTClient) onConnectionLost(_ mqtt.Client, err error) {
	log.Printf("[MQTT] Connection interrupted (%v), auto-reconnect will retry", err)
	c.setConnected(false)
}

// uplinkHandler forwards payloads for one tag to the registered handler
func (c *MQTTClient) uplinkHandler(tagID string) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		if c.handler != nil {
			c.handler(tagID, msg.Payload())
		}
	}
}

// IsConnected returns true if the MQTT client is connected
func (c *MQTTClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isConnected
}

func (c *MQTTClient) setConnected(connected bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.isConnected = connected
}

// Disconnect closes the broker connection
func (c *MQTTClient) Disconnect() {
	if c.client != nil && c.client.IsConnected() {
		log.Println("[MQTT] Disconnecting...")
		c.client.Disconnect(250)
		c.setConnected(false)
	}
}

// GetClient returns the underlying client for publishing
func (c *MQTTClient) GetClient() mqtt.Client {
	return c.client
}

// newMQTTClientWithMock wraps an existing client, used by tests
func newMQTTClientWithMock(client mqtt.Client, config *Config, handler PayloadHandler) *MQTTClient {
	return &MQTTClient{client: client, config: config, handler: handler}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
