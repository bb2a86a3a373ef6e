package messaging

import (
	"github.com/fystack/guardkv/pkg/logger"
	"github.com/nats-io/nats.go"
)

// RequestHandler turns one request into its reply.
type RequestHandler func(topic string, data []byte) []byte

type RequestServer interface {
	Serve(topic string, handler RequestHandler) (Subscription, error)
}

type natsRequestServer struct {
	pubsub PubSub
}

func NewNATSRequestServer(natsConn *nats.Conn) RequestServer {
	return &natsRequestServer{pubsub: NewNATSPubSub(natsConn)}
}

func (s *natsRequestServer) Serve(topic string, handler RequestHandler) (Subscription, error) {
	return s.pubsub.Subscribe(topic, func(msg *nats.Msg) {
		reply := handler(msg.Subject, msg.Data)
		if msg.Reply == "" {
			logger.Warn("Dropping reply for request without reply subject", "topic", msg.Subject)
			return
		}
		if err := msg.Respond(reply); err != nil {
			logger.Error("Failed to respond to request", err, "topic", msg.Subject)
		}
	})
}
