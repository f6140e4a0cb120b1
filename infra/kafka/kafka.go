// Package kafka forwards domain events to a Kafka topic with a sarama
// synchronous producer.
package kafka

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	"github.com/IBM/sarama"
)

// Config defines the producer connection.
type Config struct {
	Brokers  []string `json:"brokers"`
	Topic    string   `json:"topic"`
	ClientID string   `json:"client_id"`
	Version  string   `json:"version"`
	Username string   `json:"username"`
	Password string   `json:"password"`
	UseTLS   bool     `json:"use_tls"`
	CertFile string   `json:"cert_file"`
	KeyFile  string   `json:"key_file"`
	CAFile   string   `json:"ca_file"`
}

// SetDefaults fills the topic, client id and protocol version.
func (c *Config) SetDefaults() {
	if c.Topic == "" {
		c.Topic = "kurir.events"
	}
	if c.ClientID == "" {
		c.ClientID = "kurir"
	}
	if c.Version == "" {
		c.Version = "2.8.0"
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if len(c.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required")
	}
	if _, err := sarama.ParseKafkaVersion(c.Version); err != nil {
		return fmt.Errorf("kafka.version: %w", err)
	}
	return nil
}

// NewSaramaConfig builds the producer configuration.
func NewSaramaConfig(c Config) (*sarama.Config, error) {
	cfg := sarama.NewConfig()
	v, err := sarama.ParseKafkaVersion(c.Version)
	if err != nil {
		return nil, err
	}
	cfg.Version = v
	cfg.ClientID = c.ClientID
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 3
	cfg.Producer.Return.Successes = true
	// Events of one entity share a key and must stay ordered.
	cfg.Producer.Partitioner = sarama.NewHashPartitioner

	if c.Username != "" && c.Password != "" {
		cfg.Net.SASL.Enable = true
		cfg.Net.SASL.Mechanism = sarama.SASLTypePlaintext
		cfg.Net.SASL.User = c.Username
		cfg.Net.SASL.Password = c.Password
		cfg.Net.SASL.Handshake = true
	}
	if c.UseTLS {
		tlsCfg, err := loadTLS(c.CertFile, c.KeyFile, c.CAFile)
		if err != nil {
			return nil, err
		}
		cfg.Net.TLS.Enable = true
		cfg.Net.TLS.Config = tlsCfg
	}
	return cfg, nil
}

func loadTLS(certFile, keyFile, caFile string) (*tls.Config, error) {
	tlsCfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if caFile != "" {
		ca, err := os.ReadFile(caFile)
		if err != nil {
			return nil, fmt.Errorf("read ca: %w", err)
		}
		pool := x509.NewCertPool()
		pool.AppendCertsFromPEM(ca)
		tlsCfg.RootCAs = pool
	}
	if certFile != "" && keyFile != "" {
		cert, err := tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			return nil, fmt.Errorf("load cert: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}
	}
	return tlsCfg, nil
}
