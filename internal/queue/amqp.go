package queue

import (
	"encoding/json"

	"github.com/streadway/amqp"
)

// ProcessJob asks the worker to run an orchestration pass for a campaign.
// Action is "process" or "retry".
type ProcessJob struct {
	CampaignID string `json:"campaign_id"`
	Action     string `json:"action"`
}

const (
	ActionProcess = "process"
	ActionRetry   = "retry"
)

// ProcessPublisher hands process jobs from the API to the worker.
type ProcessPublisher interface {
	PublishProcessJob(job ProcessJob) error
}

// AMQPPublisher publishes process jobs to a durable RabbitMQ queue.
type AMQPPublisher struct {
	Channel   *amqp.Channel
	QueueName string
}

// NewAMQPPublisher declares the durable queue and returns a publisher
// bound to it.
func NewAMQPPublisher(conn *amqp.Connection, queueName string) (*AMQPPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}

	_, err = ch.QueueDeclare(
		queueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		ch.Close()
		return nil, err
	}

	return &AMQPPublisher{Channel: ch, QueueName: queueName}, nil
}

func (p *AMQPPublisher) PublishProcessJob(job ProcessJob) error {
	body, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return p.Channel.Publish(
		"",
		p.QueueName,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
}

func (p *AMQPPublisher) Close() error {
	return p.Channel.Close()
}

var _ ProcessPublisher = (*AMQPPublisher)(nil)
