//go:build integration

// Integration tests for the MQTT publisher against a real Mosquitto broker
// managed by testcontainers.
//
//nolint:misspell // Mosquitto is the official Eclipse project name
package mqtt_test

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tphakala/logwatch/internal/alerting"
	"github.com/tphakala/logwatch/internal/logger"
	"github.com/tphakala/logwatch/internal/mqtt"
	"github.com/tphakala/logwatch/internal/observability"
	"github.com/tphakala/logwatch/internal/testutil/containers"
)

const integrationTestTopic = "logwatch/integration-test"

var mqttBroker *containers.MosquittoContainer

func TestMain(m *testing.M) {
	ctx := context.Background() //nolint:gocritic // TestMain has no *testing.T for t.Context()

	var err error
	mqttBroker, err = containers.NewMosquittoContainer(ctx, nil)
	if err != nil {
		panic("failed to create MQTT broker: " + err.Error())
	}

	code := m.Run()

	_ = mqttBroker.Terminate(context.Background()) //nolint:gocritic // TestMain has no *testing.T for t.Context()
	os.Exit(code)
}

func connectedClient(t *testing.T) mqtt.Client {
	t.Helper()

	client, err := mqtt.NewClient(mqtt.Config{
		Broker:   mqttBroker.GetBrokerURL(t),
		ClientID: "logwatch-" + t.Name(),
	}, observability.NewMetrics(), logger.Discard())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(t.Context(), 15*time.Second)
	defer cancel()
	require.NoError(t, client.Connect(ctx))
	t.Cleanup(client.Disconnect)
	return client
}

func subscribe(t *testing.T, topic string) <-chan paho.Message {
	t.Helper()

	sub, err := mqttBroker.CreateClient("sub-" + t.Name())
	require.NoError(t, err)
	t.Cleanup(func() { sub.Disconnect(250) })

	received := make(chan paho.Message, 10)
	token := sub.Subscribe(topic, mqtt.QoS, func(_ paho.Client, msg paho.Message) {
		received <- msg
	})
	require.True(t, token.WaitTimeout(5*time.Second), "subscribe timeout")
	require.NoError(t, token.Error())
	return received
}

func TestMQTTIntegration_ConnectAndDisconnect(t *testing.T) {
	client := connectedClient(t)
	assert.True(t, client.IsConnected())

	client.Disconnect()
	assert.False(t, client.IsConnected())
}

func TestMQTTIntegration_PublisherDeliversBusEvents(t *testing.T) {
	topic := integrationTestTopic + "/bus"
	received := subscribe(t, topic)

	bus := alerting.NewAlertEventBus()
	publisher := mqtt.NewPublisher(connectedClient(t), topic, nil, logger.Discard())
	bus.Subscribe(publisher.Handle)

	event := alerting.NewTransitionEvent(alerting.Transition{
		Kind:      alerting.KindTrafficElevated,
		Rate:      11,
		Threshold: 10,
		At:        time.Date(2019, 2, 7, 21, 11, 1, 0, time.UTC),
		Message:   "High traffic generated an alert - hits = 11.00, triggered at 2019-02-07 21:11:01",
	})
	require.True(t, bus.Publish(event))
	bus.Stop()

	select {
	case msg := <-received:
		assert.False(t, msg.Retained(), "alert events are not retained")
		assert.Equal(t, mqtt.QoS, msg.Qos())

		var got alerting.AlertEvent
		require.NoError(t, json.Unmarshal(msg.Payload(), &got))
		assert.Equal(t, event.ID, got.ID)
		assert.Equal(t, event.Message, got.Message)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for alert event")
	}
}

func TestMQTTIntegration_NothingRetainedForLateSubscribers(t *testing.T) {
	topic := integrationTestTopic + "/late"
	client := connectedClient(t)

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()
	require.NoError(t, client.Publish(ctx, topic, `{"kind":"traffic.summary"}`))

	received := subscribe(t, topic)
	select {
	case msg := <-received:
		t.Fatalf("unexpected retained message: %s", msg.Payload())
	case <-time.After(500 * time.Millisecond):
	}
}
