package eventconsumer

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/fystack/guardkv/pkg/event"
	"github.com/fystack/guardkv/pkg/identity"
	"github.com/fystack/guardkv/pkg/lifecycle"
	"github.com/fystack/guardkv/pkg/logger"
	"github.com/fystack/guardkv/pkg/messaging"
	"github.com/fystack/guardkv/pkg/node"
	"github.com/fystack/guardkv/pkg/types"
)

const (
	DefaultSubjectPrefix = "guardkv"
	DefaultBufferSize    = 100
)

var (
	ErrConsumerClosed   = errors.New("request consumer is closed")
	errMissingRequestID = errors.New("missing request id")
)

type RequestConsumer interface {
	Run() error
	Close() error
}

// StateReader reports the lifecycle state requests are gated on.
type StateReader interface {
	State() lifecycle.State
}

type request struct {
	topic string
	data  []byte
	reply chan []byte
}

type requestConsumer struct {
	node     *node.Node
	state    StateReader
	verifier identity.Verifier
	server   messaging.RequestServer
	pubsub   messaging.PubSub
	prefix   string

	subs      []messaging.Subscription
	msgBuffer chan request
	requests  *requestTracker

	closeMu sync.RWMutex
	closed  bool
	done    chan struct{}
}

func NewRequestConsumer(
	node *node.Node,
	state StateReader,
	verifier identity.Verifier,
	server messaging.RequestServer,
	pubsub messaging.PubSub,
	prefix string,
) RequestConsumer {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}

	rc := &requestConsumer{
		node:      node,
		state:     state,
		verifier:  verifier,
		server:    server,
		pubsub:    pubsub,
		prefix:    prefix,
		msgBuffer: make(chan request, DefaultBufferSize),
		requests:  newRequestTracker(DefaultRequestWindow),
		done:      make(chan struct{}),
	}

	go rc.startWorker()
	go rc.requests.cleanupRoutine(defaultCleanupPeriod)
	return rc
}

func (rc *requestConsumer) subject(topic string) string {
	return rc.prefix + "." + topic
}

// Run subscribes to every request subject.
func (rc *requestConsumer) Run() error {
	for _, topic := range []string{event.StoreTopic, event.RetrieveTopic, event.AddUserTopic} {
		sub, err := rc.server.Serve(rc.subject(topic), rc.enqueue)
		if err != nil {
			return fmt.Errorf("failed to serve %s: %w", rc.subject(topic), err)
		}
		rc.subs = append(rc.subs, sub)
	}

	logger.Info("Request consumer started", "prefix", rc.prefix, "node", rc.node.Name())
	return nil
}

// enqueue hands the request to the single worker and waits for its reply.
func (rc *requestConsumer) enqueue(topic string, data []byte) []byte {
	rc.closeMu.RLock()
	if rc.closed {
		rc.closeMu.RUnlock()
		return encodeResult(event.Failure("", event.ErrorCodeNotRunning, ErrConsumerClosed))
	}
	req := request{topic: topic, data: data, reply: make(chan []byte, 1)}
	rc.msgBuffer <- req
	rc.closeMu.RUnlock()

	return <-req.reply
}

func (rc *requestConsumer) startWorker() {
	defer close(rc.done)
	for req := range rc.msgBuffer {
		req.reply <- rc.handle(req.topic, req.data)
	}
}

func (rc *requestConsumer) handle(topic string, data []byte) []byte {
	name := strings.TrimPrefix(topic, rc.prefix+".")

	var result event.Result
	switch name {
	case event.StoreTopic:
		result = rc.handleStore(data)
	case event.RetrieveTopic:
		result = rc.handleRetrieve(data)
	case event.AddUserTopic:
		result = rc.handleAddUser(data)
	default:
		result = event.Failure("", event.ErrorCodeMessageFormat, fmt.Errorf("unknown topic %q", topic))
	}
	return encodeResult(result)
}

func (rc *requestConsumer) running() bool {
	return rc.state.State() == lifecycle.StateRunning
}

func (rc *requestConsumer) handleStore(data []byte) event.Result {
	var msg types.StoreMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		logger.Error("Failed to unmarshal store message", err)
		return event.Failure("", event.ErrorCodeMessageFormat, err)
	}
	if !rc.running() {
		return event.Failure(msg.RequestID, event.ErrorCodeNotRunning, event.ErrNotRunning)
	}
	if err := rc.verifier.Verify(&msg); err != nil {
		logger.Warn("Store signature rejected", "requestID", msg.RequestID, "caller", msg.Caller, "error", err.Error())
		return event.Failure(msg.RequestID, event.ErrorCodeSignatureVerification, err)
	}
	if msg.RequestID == "" {
		return event.Failure("", event.ErrorCodeMessageFormat, errMissingRequestID)
	}
	if err := rc.requests.admit(&msg); err != nil {
		return event.Failure(msg.RequestID, event.ErrorCodeFromError(err), err)
	}

	caller := msg.CallerID()
	if err := rc.node.Store(caller, msg.Path, msg.Contents); err != nil {
		return event.Failure(msg.RequestID, event.ErrorCodeFromError(err), err)
	}

	rc.publish(event.StoredEventTopic, event.MutationEvent{
		RequestID: msg.RequestID,
		Caller:    caller.String(),
		Path:      msg.Path,
		Size:      len(msg.Contents),
	})
	return event.Success(msg.RequestID, nil)
}

func (rc *requestConsumer) handleRetrieve(data []byte) event.Result {
	var msg types.RetrieveMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		logger.Error("Failed to unmarshal retrieve message", err)
		return event.Failure("", event.ErrorCodeMessageFormat, err)
	}
	if !rc.running() {
		return event.Failure(msg.RequestID, event.ErrorCodeNotRunning, event.ErrNotRunning)
	}

	contents, err := rc.node.Retrieve(msg.Path)
	if err != nil {
		return event.Failure(msg.RequestID, event.ErrorCodeFromError(err), err)
	}
	return event.Success(msg.RequestID, contents)
}

func (rc *requestConsumer) handleAddUser(data []byte) event.Result {
	var msg types.AddUserMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		logger.Error("Failed to unmarshal add_user message", err)
		return event.Failure("", event.ErrorCodeMessageFormat, err)
	}
	if !rc.running() {
		return event.Failure(msg.RequestID, event.ErrorCodeNotRunning, event.ErrNotRunning)
	}
	if err := rc.verifier.Verify(&msg); err != nil {
		logger.Warn("add_user signature rejected", "requestID", msg.RequestID, "caller", msg.Caller, "error", err.Error())
		return event.Failure(msg.RequestID, event.ErrorCodeSignatureVerification, err)
	}
	if msg.RequestID == "" {
		return event.Failure("", event.ErrorCodeMessageFormat, errMissingRequestID)
	}
	if err := rc.requests.admit(&msg); err != nil {
		return event.Failure(msg.RequestID, event.ErrorCodeFromError(err), err)
	}

	caller := msg.CallerID()
	if err := rc.node.AddUser(caller, msg.Principal); err != nil {
		return event.Failure(msg.RequestID, event.ErrorCodeFromError(err), err)
	}

	rc.publish(event.UserAddedEventTopic, event.MutationEvent{
		RequestID: msg.RequestID,
		Caller:    caller.String(),
		Principal: msg.Principal.String(),
	})
	return event.Success(msg.RequestID, nil)
}

// publish is best effort; the request already succeeded.
func (rc *requestConsumer) publish(topic string, evt event.MutationEvent) {
	if rc.pubsub == nil {
		return
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		logger.Error("Failed to marshal mutation event", err, "topic", topic)
		return
	}
	if err := rc.pubsub.Publish(rc.subject(topic), payload); err != nil {
		logger.Error("Failed to publish mutation event", err, "topic", topic)
	}
}

func encodeResult(result event.Result) []byte {
	payload, err := json.Marshal(result)
	if err != nil {
		logger.Error("Failed to marshal result", err, "requestID", result.RequestID)
		return nil
	}
	return payload
}

// Close stops accepting requests and returns once every queued request has
// been answered.
func (rc *requestConsumer) Close() error {
	var errs []error
	for _, sub := range rc.subs {
		if err := sub.Unsubscribe(); err != nil {
			errs = append(errs, err)
		}
	}

	rc.closeMu.Lock()
	if !rc.closed {
		rc.closed = true
		close(rc.msgBuffer)
	}
	rc.closeMu.Unlock()

	<-rc.done
	rc.requests.stop()
	logger.Info("Request consumer closed", "node", rc.node.Name())
	return errors.Join(errs...)
}
