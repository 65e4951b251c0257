package mqtt

import (
	"fmt"

	"firewatch/internal/logger"
	"firewatch/internal/models"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/goccy/go-json"
)

type Client struct {
	client mqtt.Client
	config models.MQTTConfig
}

func NewClient(cfg models.MQTTConfig) *Client {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)

	if cfg.User != "" {
		opts.SetUsername(cfg.User)
		opts.SetPassword(cfg.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		logger.Infof("Connected to MQTT broker at %s", cfg.Broker)
	})
	opts.SetConnectionLostHandler(func(c mqtt.Client, err error) {
		logger.Warnf("Lost connection to MQTT broker: %v", err)
	})

	client := mqtt.NewClient(opts)
	return &Client{
		client: client,
		config: cfg,
	}
}

func (c *Client) Connect() error {
	token := c.client.Connect()
	if token.Wait() && token.Error() != nil {
		return token.Error()
	}
	return nil
}

// DecodeCommand parses a remote command payload
func DecodeCommand(payload []byte) (models.RemoteCommand, error) {
	var cmd models.RemoteCommand
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return cmd, fmt.Errorf("failed to unmarshal command: %w", err)
	}
	if cmd.Cmd == "" {
		return cmd, fmt.Errorf("command has no cmd field")
	}
	return cmd, nil
}

// SubscribeCommands hands remote commands from the configured commands topic to cmds.
// The router never blocks: undecodable payloads and commands arriving while cmds is
// full are logged and dropped.
func (c *Client) SubscribeCommands(cmds chan<- models.RemoteCommand) error {
	topic := c.config.CommandsTopic
	token := c.client.Subscribe(topic, 0, func(client mqtt.Client, msg mqtt.Message) {
		deliverCommand(cmds, msg.Payload())
	})

	if token.Wait() && token.Error() != nil {
		return token.Error()
	}

	logger.Infof("Subscribed to topic: %s", topic)
	return nil
}

func deliverCommand(cmds chan<- models.RemoteCommand, payload []byte) bool {
	cmd, err := DecodeCommand(payload)
	if err != nil {
		logger.Warnf("Ignoring remote command: %v", err)
		return false
	}
	select {
	case cmds <- cmd:
		return true
	default:
		logger.Warnf("Dropping remote command %q: queue full", cmd.Cmd)
		return false
	}
}

func (c *Client) Publish(topic string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	token := c.client.Publish(topic, 0, false, data)
	if token.Wait() && token.Error() != nil {
		return token.Error()
	}
	return nil
}

func (c *Client) Disconnect() {
	c.client.Disconnect(250)
}
