// Package mqtt defines the broker contract used by the MQTT event bridge.
package mqtt

// Publisher publishes payloads on broker topics.
type Publisher interface {
	// Publish sends payload on topic and waits for the broker to accept it.
	Publish(topic string, payload []byte) error

	// Disconnect closes the connection.
	Disconnect()
}
