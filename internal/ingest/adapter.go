package ingest

import (
	"fmt"
	"log"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"smart-parking-backend/config"
)

// Consumer bridges the MQTT client to the pipeline. Paho delivers messages
// on its own network goroutine; the only thing that happens there is the
// non-blocking Enqueue handoff.
type Consumer struct {
	cfg      *config.MQTTConfig
	client   mqtt.Client
	pipeline *Pipeline
}

// NewConsumer creates an MQTT consumer feeding the pipeline.
func NewConsumer(cfg *config.MQTTConfig, p *Pipeline) *Consumer {
	c := &Consumer{cfg: cfg, pipeline: p}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.Printf("mqtt connection lost: %v", err)
		})

	c.client = mqtt.NewClient(opts)
	return c
}

// Start connects to the broker. Subscriptions are (re-)established by the
// connect handler on every successful connection.
func (c *Consumer) Start() error {
	token := c.client.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect to %s failed: %w", c.cfg.BrokerURL, err)
	}
	log.Printf("mqtt consumer connected to %s", c.cfg.BrokerURL)
	return nil
}

// Stop disconnects from the broker, allowing in-flight work to finish.
func (c *Consumer) Stop() {
	c.client.Disconnect(250)
}

func (c *Consumer) onConnect(client mqtt.Client) {
	for _, city := range c.cfg.Cities {
		topic := fmt.Sprintf("parking/%s/+/status", city)
		token := client.Subscribe(topic, c.cfg.QoS, c.onMessage)
		token.Wait()
		if err := token.Error(); err != nil {
			log.Printf("failed to subscribe to %s: %v", topic, err)
			continue
		}
		log.Printf("subscribed to %s", topic)
	}
}

// onMessage runs on paho's delivery goroutine. It must never block.
func (c *Consumer) onMessage(_ mqtt.Client, msg mqtt.Message) {
	c.pipeline.Enqueue(msg.Topic(), msg.Payload())
}
