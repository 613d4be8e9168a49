package eventbus

import "time"

// Config is filled from AMQP_* variables. An empty URL disables publishing.
type Config struct {
	URL            string        `env:"AMQP_URL"`
	Exchange       string        `env:"AMQP_EXCHANGE" envDefault:"examgate.entitlement.events"`
	ConfirmTimeout time.Duration `env:"AMQP_CONFIRM_TIMEOUT" envDefault:"5s"`
}
