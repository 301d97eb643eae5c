package rpm

import (
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"gonum.org/v1/gonum/mat"
)

// PointsHandler is called when a point-set message arrives on a source
// topic. points is nil when the payload failed to decode.
type PointsHandler func(sourceID string, points *mat.Dense, err error)

// MQTTClient manages the MQTT connection and the per-source subscriptions.
type MQTTClient struct {
	client      mqtt.Client
	config      *ServiceConfig
	handler     PointsHandler
	isConnected bool
	mu          sync.RWMutex
}

// InitMQTT connects to the broker from the config (the MQTT_BROKER env var
// takes precedence) and subscribes to every source topic. If no broker is
// configured, MQTT is disabled and InitMQTT returns nil.
func InitMQTT(config *ServiceConfig, handler PointsHandler) (*MQTTClient, error) {
	broker := os.Getenv("MQTT_BROKER")
	if broker == "" && config != nil {
		broker = config.MQTT.Broker
	}
	if broker == "" {
		log.Println("MQTT disabled: no broker configured")
		return nil, nil
	}
	if config == nil || len(config.Sources) == 0 {
		return nil, fmt.Errorf("MQTT enabled but no source configuration provided")
	}

	c := &MQTTClient{
		config:  config,
		handler: handler,
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)

	clientID := config.MQTT.ClientID
	if clientID == "" {
		clientID = "tpsmesh"
	}
	opts.SetClientID(clientID)

	if config.MQTT.Username != "" {
		opts.SetUsername(config.MQTT.Username)
		opts.SetPassword(config.MQTT.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetCleanSession(false)
	opts.SetOrderMatters(false)

	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(c.onConnectionLost)

	c.client = mqtt.NewClient(opts)

	go c.connectWithRetry()

	return c, nil
}

// connectWithRetry attempts to connect to the broker with exponential
// backoff.
func (c *MQTTClient) connectWithRetry() {
	retryDelay := 1 * time.Second
	maxRetryDelay := 60 * time.Second

	for {
		log.Println("Connecting to MQTT broker...")

		token := c.client.Connect()
		if token.WaitTimeout(10 * time.Second) {
			if token.Error() == nil {
				log.Println("Successfully connected to MQTT broker")
				c.setConnected(true)
				return
			}
			log.Printf("MQTT connection failed: %v", token.Error())
		} else {
			log.Println("MQTT connection timeout")
		}

		log.Printf("Retrying MQTT connection in %v...", retryDelay)
		time.Sleep(retryDelay)
		retryDelay *= 2
		if retryDelay > maxRetryDelay {
			retryDelay = maxRetryDelay
		}
	}
}

// onConnect subscribes to every configured source topic.
func (c *MQTTClient) onConnect(client mqtt.Client) {
	log.Println("MQTT connected, subscribing to source topics...")
	c.setConnected(true)

	for _, source := range c.config.Sources {
		if source.Topic == "" {
			log.Printf("Warning: source %s has no topic configured", source.ID)
			continue
		}

		log.Printf("Subscribing to %s for source %s", source.Topic, source.ID)
		token := client.Subscribe(source.Topic, 0, c.createMessageHandler(source.ID))
		if token.WaitTimeout(5*time.Second) && token.Error() != nil {
			log.Printf("Error subscribing to %s: %v", source.Topic, token.Error())
		}
	}
}

func (c *MQTTClient) onConnectionLost(client mqtt.Client, err error) {
	log.Printf("MQTT connection interrupted (%v), auto-reconnect will retry", err)
	c.setConnected(false)
}

// createMessageHandler decodes point-set payloads for a specific source.
func (c *MQTTClient) createMessageHandler(sourceID string) mqtt.MessageHandler {
	return func(client mqtt.Client, msg mqtt.Message) {
		payload := msg.Payload()
		log.Printf("Received point set for %s (topic: %s, size: %d bytes)",
			sourceID, msg.Topic(), len(payload))

		points, err := DecodePointsPayload(payload)
		if c.handler != nil {
			c.handler(sourceID, points, err)
		} else if err != nil {
			log.Printf("Error decoding point set for %s: %v", sourceID, err)
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

// Disconnect gracefully closes the MQTT connection
func (c *MQTTClient) Disconnect() {
	if c.client != nil && c.client.IsConnected() {
		log.Println("Disconnecting from MQTT broker...")
		c.client.Disconnect(250)
		c.setConnected(false)
	}
}

// Client returns the underlying MQTT client for publishing
func (c *MQTTClient) Client() mqtt.Client {
	return c.client
}

// newMQTTClientWithMock creates an MQTTClient with a provided mqtt.Client.
// Used by tests with mock clients.
func newMQTTClientWithMock(client mqtt.Client, config *ServiceConfig, handler PointsHandler) *MQTTClient {
	return &MQTTClient{
		client:  client,
		config:  config,
		handler: handler,
	}
}
