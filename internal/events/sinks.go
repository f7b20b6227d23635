package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/segmentio/kafka-go"

	awsclient "image-collector/internal/common/aws"
	"image-collector/internal/common/logger"
	"image-collector/internal/scheduler"
)

// Sink publishes scheduler lifecycle events to one destination.
type Sink interface {
	Name() string
	Publish(ctx context.Context, e scheduler.Event) error
}

// LogSink writes events to the structured log. Progress events are logged at
// debug level only.
type LogSink struct {
	log logger.Logger
}

func NewLogSink(log logger.Logger) *LogSink {
	return &LogSink{log: log.WithFields(map[string]interface{}{"component": "events"})}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Publish(_ context.Context, e scheduler.Event) error {
	fields := map[string]interface{}{
		"event": string(e.Type), "queue": e.Queue, "jobId": e.JobID, "jobType": e.JobType,
	}
	if e.Attempt > 0 {
		fields["attempt"] = e.Attempt
	}
	switch e.Type {
	case scheduler.EventFailed:
		fields["error"] = e.Error
		fields["errorCode"] = e.ErrorCode
		if e.Terminal {
			s.log.Error("Job failed permanently", fields)
		} else {
			s.log.Warn("Job attempt failed", fields)
		}
	case scheduler.EventStalled:
		fields["reason"] = e.Error
		s.log.Warn("Job stalled", fields)
	case scheduler.EventRetrying:
		fields["delay"] = e.Delay.String()
		s.log.Info("Job retry scheduled", fields)
	case scheduler.EventProgress:
		fields["progress"] = e.Progress
		s.log.Debug("Job progress", fields)
	default:
		s.log.Debug("Job "+string(e.Type), fields)
	}
	return nil
}

// SNSSink publishes each event as a JSON message to an SNS topic with the
// event type and queue as message attributes.
type SNSSink struct {
	client   awsclient.SNSPublisher
	topicARN string
}

func NewSNSSink(client awsclient.SNSPublisher, topicARN string) *SNSSink {
	return &SNSSink{client: client, topicARN: topicARN}
}

func (s *SNSSink) Name() string { return "sns" }

func (s *SNSSink) Publish(ctx context.Context, e scheduler.Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return err
	}
	_, err = s.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(s.topicARN),
		Message:  aws.String(string(body)),
		Subject:  aws.String(fmt.Sprintf("job %s", e.Type)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"eventType": {DataType: aws.String("String"), StringValue: aws.String(string(e.Type))},
			"queue":     {DataType: aws.String("String"), StringValue: aws.String(e.Queue)},
		},
	})
	if err != nil {
		return fmt.Errorf("sns publish: %w", err)
	}
	return nil
}

// MessageWriter is the part of kafka.Writer the sink needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink writes events to a topic keyed by queue and job ID, so every
// event of a job lands on the same partition.
type KafkaSink struct {
	writer MessageWriter
	topic  string
}

func NewKafkaSink(brokers []string, topic string) (*KafkaSink, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka sink requires at least one broker")
	}
	if topic == "" {
		return nil, fmt.Errorf("kafka sink requires a topic")
	}
	return &KafkaSink{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			RequiredAcks: kafka.RequireOne,
			Balancer:     &kafka.Hash{},
		},
		topic: topic,
	}, nil
}

func NewKafkaSinkWith(w MessageWriter, topic string) *KafkaSink {
	return &KafkaSink{writer: w, topic: topic}
}

func (s *KafkaSink) Name() string { return "kafka" }

func (s *KafkaSink) Publish(ctx context.Context, e scheduler.Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return err
	}
	at := e.At
	if at.IsZero() {
		at = time.Now()
	}
	return s.writer.WriteMessages(ctx, kafka.Message{
		Topic: s.topic,
		Key:   []byte(e.Queue + ":" + e.JobID),
		Value: body,
		Time:  at.UTC(),
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(e.Type)},
		},
	})
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
