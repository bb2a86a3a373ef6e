package messaging

import (
	"github.com/fystack/guardkv/pkg/logger"
	"github.com/nats-io/nats.go"
)

type Subscription interface {
	Unsubscribe() error
}

type PubSub interface {
	Publish(topic string, message []byte) error
	Subscribe(topic string, handler func(msg *nats.Msg)) (Subscription, error)
}

type natsPubSub struct {
	natsConn *nats.Conn
}

type natsSubscription struct {
	subscription *nats.Subscription
}

func (ns *natsSubscription) Unsubscribe() error {
	return ns.subscription.Unsubscribe()
}

func NewNATSPubSub(natsConn *nats.Conn) PubSub {
	return &natsPubSub{natsConn}
}

func (n *natsPubSub) Publish(topic string, message []byte) error {
	logger.Debug("[NATS] Publishing message", "topic", topic)
	return n.natsConn.Publish(topic, message)
}

// Subscribe registers handler and flushes, so the subscription is live on the
// server by the time Subscribe returns.
func (n *natsPubSub) Subscribe(topic string, handler func(msg *nats.Msg)) (Subscription, error) {
	sub, err := n.natsConn.Subscribe(topic, func(msg *nats.Msg) {
		handler(msg)
	})
	if err != nil {
		return nil, err
	}

	if err := n.natsConn.Flush(); err != nil {
		if unsubErr := sub.Unsubscribe(); unsubErr != nil {
			logger.Error("Failed to unsubscribe", unsubErr, "topic", topic)
		}
		return nil, err
	}

	return &natsSubscription{subscription: sub}, nil
}
