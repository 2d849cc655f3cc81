// Package publisher delivers completed transcript records to an MQTT
// broker.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/voicewire/voicewire-go/internal/conf"
	"github.com/voicewire/voicewire-go/internal/errors"
	"github.com/voicewire/voicewire-go/internal/logging"
	"github.com/voicewire/voicewire-go/internal/observability/metrics"
	"github.com/voicewire/voicewire-go/internal/pipeline"
)

// Client defines the interface for transcript publishing.
type Client interface {
	// Connect attempts to connect to the broker. It enforces a cooldown
	// between attempts.
	Connect(ctx context.Context) error

	// PublishRecord serializes the record as JSON and publishes it to the
	// configured topic.
	PublishRecord(ctx context.Context, record pipeline.OutputRecord) error

	// IsConnected reports whether the client currently holds a broker
	// connection.
	IsConnected() bool

	// Disconnect closes the broker connection.
	Disconnect()
}

const (
	reconnectCooldown = 5 * time.Second
	connectTimeout    = 30 * time.Second
	publishTimeout    = 10 * time.Second
	disconnectGraceMs = 250
)

// client implements Client on the Eclipse Paho library.
type client struct {
	settings *conf.Settings
	metrics  *metrics.MQTTMetrics
	log      *slog.Logger
	closeLog func() error

	mu              sync.Mutex
	internalClient  mqtt.Client
	lastConnAttempt time.Time
}

// NewClient creates an MQTT publisher from the settings. Metrics may be
// nil in tests.
func NewClient(settings *conf.Settings, mm *metrics.MQTTMetrics) Client {
	log, closeLog := logging.ForServiceFile("publisher",
		settings.Main.Log.Path, settings.Main.Log.Enabled)
	return &client{
		settings: settings,
		metrics:  mm,
		log:      log,
		closeLog: closeLog,
	}
}

func (c *client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if time.Since(c.lastConnAttempt) < reconnectCooldown {
		return errors.Newf("connection attempt too recent, last attempt was %v ago",
			time.Since(c.lastConnAttempt)).
			Component("publisher").
			Category(errors.CategoryMQTTConnection).
			Build()
	}
	c.lastConnAttempt = time.Now()

	u, err := url.Parse(c.settings.MQTT.Broker)
	if err != nil {
		return errors.New(fmt.Errorf("invalid broker URL: %w", err)).
			Component("publisher").
			Category(errors.CategoryValidation).
			Build()
	}

	// Resolve hostnames up front so a dead broker fails fast with a DNS
	// error instead of a generic connect timeout.
	host := u.Hostname()
	if net.ParseIP(host) == nil {
		if _, err := net.DefaultResolver.LookupHost(ctx, host); err != nil {
			return errors.New(err).
				Component("publisher").
				Category(errors.CategoryMQTTConnection).
				Context("host", host).
				Build()
		}
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(c.settings.MQTT.Broker)
	opts.SetClientID(c.settings.Main.Name)
	opts.SetUsername(c.settings.MQTT.Username)
	opts.SetPassword(c.settings.MQTT.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(c.onConnectionLost)

	c.internalClient = mqtt.NewClient(opts)

	token := c.internalClient.Connect()
	if !token.WaitTimeout(connectTimeout) {
		if c.metrics != nil {
			c.metrics.RecordError("connect_timeout")
		}
		return errors.Newf("connection timeout after %v", connectTimeout).
			Component("publisher").
			Category(errors.CategoryTimeout).
			Build()
	}
	if err := token.Error(); err != nil {
		if c.metrics != nil {
			c.metrics.RecordError("connect")
		}
		return errors.New(err).
			Component("publisher").
			Category(errors.CategoryMQTTConnection).
			Build()
	}

	if c.metrics != nil {
		c.metrics.UpdateConnectionStatus(true)
	}
	return nil
}

func (c *client) PublishRecord(ctx context.Context, record pipeline.OutputRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.IsConnected() {
		if c.metrics != nil {
			c.metrics.RecordPublish("not_connected")
		}
		return errors.Newf("not connected to MQTT broker").
			Component("publisher").
			Category(errors.CategoryMQTTPublish).
			Build()
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return errors.New(err).
			Component("publisher").
			Category(errors.CategoryMQTTPublish).
			Build()
	}

	started := time.Now()
	token := c.internalClient.Publish(c.settings.MQTT.Topic, 0, c.settings.MQTT.Retain, payload)
	ok := token.WaitTimeout(publishTimeout)
	if c.metrics != nil {
		c.metrics.ObservePublishDuration(time.Since(started).Seconds())
	}
	if !ok {
		if c.metrics != nil {
			c.metrics.RecordPublish("timeout")
		}
		return errors.Newf("publish timeout after %v", publishTimeout).
			Component("publisher").
			Category(errors.CategoryTimeout).
			Context("topic", c.settings.MQTT.Topic).
			Build()
	}
	if err := token.Error(); err != nil {
		if c.metrics != nil {
			c.metrics.RecordPublish("error")
		}
		return errors.New(err).
			Component("publisher").
			Category(errors.CategoryMQTTPublish).
			Context("topic", c.settings.MQTT.Topic).
			Build()
	}

	if c.metrics != nil {
		c.metrics.RecordPublish("success")
	}
	c.log.Debug("record published", "topic", c.settings.MQTT.Topic, "id", record.ID)
	return nil
}

func (c *client) IsConnected() bool {
	return c.internalClient != nil && c.internalClient.IsConnected()
}

func (c *client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.internalClient != nil && c.internalClient.IsConnected() {
		c.internalClient.Disconnect(disconnectGraceMs)
		if c.metrics != nil {
			c.metrics.UpdateConnectionStatus(false)
		}
	}

	if c.closeLog != nil {
		if err := c.closeLog(); err != nil {
			slog.Warn("failed to close publisher log writer", "error", err)
		}
	}
}

func (c *client) onConnect(_ mqtt.Client) {
	c.log.Info("connected to MQTT broker", "broker", c.settings.MQTT.Broker)
	if c.metrics != nil {
		c.metrics.UpdateConnectionStatus(true)
	}
}

func (c *client) onConnectionLost(_ mqtt.Client, err error) {
	c.log.Warn("MQTT connection lost", "broker", c.settings.MQTT.Broker, "error", err)
	if c.metrics != nil {
		c.metrics.UpdateConnectionStatus(false)
		c.metrics.RecordError("connection_lost")
	}
}
