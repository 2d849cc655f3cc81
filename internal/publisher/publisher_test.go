package publisher

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voicewire/voicewire-go/internal/conf"
	"github.com/voicewire/voicewire-go/internal/errors"
	"github.com/voicewire/voicewire-go/internal/observability/metrics"
	"github.com/voicewire/voicewire-go/internal/pipeline"
)

func testSettings() *conf.Settings {
	s := &conf.Settings{}
	s.Main.Name = "voicewire-test"
	s.MQTT.Enabled = true
	s.MQTT.Broker = "tcp://localhost:1883"
	s.MQTT.Topic = "voicewire/transcripts"
	return s
}

func testMQTTMetrics(t *testing.T) *metrics.MQTTMetrics {
	t.Helper()
	mm, err := metrics.NewMQTTMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	return mm
}

func TestPublishRequiresConnection(t *testing.T) {
	c := NewClient(testSettings(), testMQTTMetrics(t))

	err := c.PublishRecord(context.Background(), pipeline.OutputRecord{ID: "x"})
	require.Error(t, err)

	var enhanced *errors.EnhancedError
	require.ErrorAs(t, err, &enhanced)
	assert.Equal(t, string(errors.CategoryMQTTPublish), enhanced.GetCategory())
}

func TestConnectRejectsInvalidBrokerURL(t *testing.T) {
	s := testSettings()
	s.MQTT.Broker = "://not-a-url"
	c := NewClient(s, testMQTTMetrics(t))

	err := c.Connect(context.Background())
	assert.Error(t, err)
}

func TestConnectCooldown(t *testing.T) {
	c := NewClient(testSettings(), testMQTTMetrics(t)).(*client)
	c.lastConnAttempt = time.Now()

	err := c.Connect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too recent")
}

func TestIsConnectedWithoutClient(t *testing.T) {
	c := NewClient(testSettings(), testMQTTMetrics(t))
	assert.False(t, c.IsConnected())

	// Disconnect without a connection must be a no-op.
	assert.NotPanics(t, c.Disconnect)
}
