// Package infra contains technical adapters: the WhatsApp transport, SQL and
// Redis storage, MQTT and Kafka event bridges and metrics exporters. These
// packages depend only on the interfaces defined in the core packages.
package infra
