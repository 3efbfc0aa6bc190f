package kafka

import (
	"strings"
	"time"

	"github.com/Shopify/sarama"
)

// Config for the kafka distribution backend.
type Config struct {
	Brokers []string

	// InstanceID scopes the per-room consumer group ids so that every
	// instance of the fleet receives every room record it subscribed to.
	InstanceID string

	ProducerRetries     int
	ProducerCompression string // none/snappy/lz4/zstd
	KafkaVersion        sarama.KafkaVersion
}

func (c *Config) norm() {
	if c.ProducerRetries <= 0 {
		c.ProducerRetries = 3
	}
	if c.KafkaVersion == (sarama.KafkaVersion{}) {
		c.KafkaVersion = sarama.V2_1_0_0
	}
}

// BuildBaseConfig assembles the shared sarama configuration. Consumers start
// at the newest offset: room history is never redelivered over the broker,
// it comes solely from the persistence engine.
func BuildBaseConfig(cfg Config) *sarama.Config {
	c := sarama.NewConfig()
	c.Version = cfg.KafkaVersion

	// Producer
	c.Producer.Return.Successes = true
	c.Producer.Return.Errors = true
	c.Producer.RequiredAcks = sarama.WaitForAll
	c.Producer.Retry.Max = cfg.ProducerRetries
	c.Producer.Partitioner = sarama.NewHashPartitioner
	switch strings.ToLower(cfg.ProducerCompression) {
	case "snappy":
		c.Producer.Compression = sarama.CompressionSnappy
	case "lz4":
		c.Producer.Compression = sarama.CompressionLZ4
	case "zstd":
		c.Producer.Compression = sarama.CompressionZSTD
	default:
		c.Producer.Compression = sarama.CompressionNone
	}

	// Consumer
	c.Consumer.Offsets.Initial = sarama.OffsetNewest
	c.Consumer.Return.Errors = true
	c.Metadata.AllowAutoTopicCreation = true

	// Net
	c.Net.DialTimeout = 10 * time.Second
	c.Net.ReadTimeout = 30 * time.Second
	c.Net.WriteTimeout = 30 * time.Second
	return c
}
