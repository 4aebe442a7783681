package lib

import (
	"context"
	"crewcomms/src/events"
	"crewcomms/src/types"
	"fmt"
	"log"
	"os"

	"github.com/confluentinc/confluent-kafka-go/kafka"
)

func GetKafkaProducerConfig(clientId string) kafka.ConfigMap {
	return kafka.ConfigMap{
		"bootstrap.servers": os.Getenv("KAFKA_BROKER"),
		"client.id":         clientId,
		"acks":              "all",
	}
}

func GetKafkaConsumerConfig(groupId string) kafka.ConfigMap {
	return kafka.ConfigMap{
		"bootstrap.servers": os.Getenv("KAFKA_BROKER"),
		"group.id":          groupId,
		"auto.offset.reset": "smallest",
		"retry.backoff.ms":  100,
	}
}

// KafkaBus publishes crew events keyed by crew id so one crew's events stay in one partition.
type KafkaBus struct {
	producer *kafka.Producer
	topic    string
}

func NewKafkaBus(clientId, topic string) (*KafkaBus, error) {
	conf := GetKafkaProducerConfig(clientId)
	p, err := kafka.NewProducer(&conf)
	if err != nil {
		log.Printf("[Kafka] error on producer: %s\n", err.Error())
		return nil, err
	}
	return &KafkaBus{producer: p, topic: topic}, nil
}

// Publish blocks until the broker acknowledges the message.
func (k *KafkaBus) Publish(ctx context.Context, e events.Event) error {
	value, err := e.Marshal()
	if err != nil {
		return err
	}
	delivery := make(chan kafka.Event, 1)
	err = k.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &k.topic, Partition: kafka.PartitionAny},
		Key:            []byte(e.CrewID),
		Value:          value,
		Headers:        []kafka.Header{{Key: "type", Value: []byte(e.Type)}},
	}, delivery)
	if err != nil {
		log.Printf("[Kafka] produce %s failed: %s\n", e.Type, err.Error())
		return types.WrapError(types.KIND_NETWORK_UNAVAILABLE, "kafka.Publish", err)
	}
	select {
	case ev := <-delivery:
		m, ok := ev.(*kafka.Message)
		if !ok {
			return nil
		}
		if m.TopicPartition.Error != nil {
			log.Printf("[Kafka] delivery of %s failed: %s\n", e.ID, m.TopicPartition.Error.Error())
			return types.WrapError(types.KIND_NETWORK_UNAVAILABLE, "kafka.Publish", m.TopicPartition.Error)
		}
		return nil
	case <-ctx.Done():
		return types.WrapError(types.KIND_NETWORK_UNAVAILABLE, "kafka.Publish", ctx.Err())
	}
}

func (k *KafkaBus) Close() {
	k.producer.Flush(5000)
	k.producer.Close()
}

// KafkaConsumer polls topic in the background and hands raw values to handle until ctx ends.
func KafkaConsumer(ctx context.Context, groupId, topic string, handle func(ctx context.Context, key, value []byte)) error {
	log.Println("[Kafka] initializing consumer...")
	conf := GetKafkaConsumerConfig(groupId)
	master, err := kafka.NewConsumer(&conf)
	if err != nil {
		log.Printf("[Kafka] error on consumer: %s\n", err.Error())
		return err
	}
	if err := master.SubscribeTopics([]string{topic}, nil); err != nil {
		log.Printf("[Kafka] error subscribing to %s: %s\n", topic, err.Error())
		master.Close()
		return err
	}
	go func() {
		defer master.Close()
		log.Printf("[Kafka] waiting for messages on %s...\n", topic)
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}
			ev := master.Poll(100)
			switch e := ev.(type) {
			case *kafka.Message:
				handle(ctx, e.Key, e.Value)
			case kafka.Error:
				fmt.Fprintf(os.Stderr, "%% Error: %v\n", e)
				if e.IsFatal() {
					return
				}
			default:
			}
		}
	}()
	return nil
}

func KafkaCreateTopics(topics ...string) ([]kafka.TopicResult, error) {
	a, err := kafka.NewAdminClient(&kafka.ConfigMap{
		"bootstrap.servers": os.Getenv("KAFKA_BROKER"),
	})
	if err != nil {
		log.Printf("[Kafka] error on AdminClient: %s\n", err.Error())
		return nil, err
	}
	defer a.Close()
	topicsDef := []kafka.TopicSpecification{}
	for _, topic := range topics {
		topicsDef = append(topicsDef, kafka.TopicSpecification{
			Topic:             topic,
			NumPartitions:     10,
			ReplicationFactor: 1,
		})
	}
	result, err := a.CreateTopics(context.Background(), topicsDef)
	if err != nil {
		log.Printf("[Kafka] error creating topics: %s\n", err.Error())
		return nil, err
	}
	return result, nil
}
