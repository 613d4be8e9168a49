// Package eventbus publishes entitlement domain events to RabbitMQ.
//
// RabbitPublisher sends persistent messages to a durable topic exchange with
// publisher confirms. GrantNotifier adapts it to entitlement.Notifier, so each
// admitted grant becomes an "entitlement.grant.admitted" message.
//
//	pub, err := eventbus.NewRabbitPublisher(cfg, log)
//	if err != nil {
//	    return err
//	}
//	defer pub.Close()
//
//	notifiers := entitlement.MultiNotifier{emailNotifier, eventbus.NewGrantNotifier(pub)}
//
// Publish blocks until the broker confirms the message or ctx is done.
package eventbus
