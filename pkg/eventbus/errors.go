package eventbus

import "errors"

var (
	ErrEmptyURL       = errors.New("eventbus: empty AMQP URL")
	ErrConnect        = errors.New("eventbus: failed to connect to broker")
	ErrPublish        = errors.New("eventbus: failed to publish message")
	ErrNotConfirmed   = errors.New("eventbus: broker did not confirm message")
	ErrPublisherClose = errors.New("eventbus: publisher is closed")
)
