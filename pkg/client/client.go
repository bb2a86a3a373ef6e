package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fystack/guardkv/pkg/event"
	"github.com/fystack/guardkv/pkg/eventconsumer"
	"github.com/fystack/guardkv/pkg/messaging"
	"github.com/fystack/guardkv/pkg/types"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

type GuardClient interface {
	Store(ctx context.Context, path string, contents []byte) error
	Retrieve(ctx context.Context, path string) ([]byte, error)
	AddUser(ctx context.Context, principal types.Principal) error
	Principal() types.Principal

	// OnMutation invokes callback for every store and add_user a node accepts.
	OnMutation(callback func(topic string, evt event.MutationEvent)) (messaging.Subscription, error)
}

type guardClient struct {
	requester messaging.Requester
	pubsub    messaging.PubSub
	signer    Signer
	principal types.Principal
	prefix    string
	newID     func() string
	now       func() time.Time
}

type Options struct {
	NatsConn *nats.Conn
	// Signer is required for Store and AddUser; Retrieve works without one.
	Signer        Signer
	SubjectPrefix string
	Retry         messaging.RetryConfig
}

func NewGuardClient(opts Options) (GuardClient, error) {
	if opts.NatsConn == nil {
		return nil, fmt.Errorf("NatsConn is required")
	}
	retry := opts.Retry
	if retry.RetryAttempt == 0 {
		retry = messaging.DefaultRetryConfig()
	}
	return newGuardClient(
		messaging.NewNATSRequester(opts.NatsConn, retry),
		messaging.NewNATSPubSub(opts.NatsConn),
		opts.Signer,
		opts.SubjectPrefix,
	)
}

func newGuardClient(requester messaging.Requester, pubsub messaging.PubSub, signer Signer, prefix string) (*guardClient, error) {
	if prefix == "" {
		prefix = eventconsumer.DefaultSubjectPrefix
	}
	c := &guardClient{
		requester: requester,
		pubsub:    pubsub,
		signer:    signer,
		prefix:    prefix,
		newID:     uuid.NewString,
		now:       time.Now,
	}
	if signer != nil {
		principal, err := PrincipalOf(signer)
		if err != nil {
			return nil, fmt.Errorf("failed to derive principal: %w", err)
		}
		c.principal = principal
	}
	return c, nil
}

func (c *guardClient) Principal() types.Principal {
	return c.principal
}

func (c *guardClient) Store(ctx context.Context, path string, contents []byte) error {
	msg := &types.StoreMessage{
		RequestID: c.newID(),
		Caller:    c.principal,
		Path:      path,
		Contents:  contents,
		Timestamp: c.now().Unix(),
	}
	if err := c.sign(msg, &msg.Signature); err != nil {
		return fmt.Errorf("Store: %w", err)
	}
	_, err := c.request(ctx, event.StoreTopic, msg)
	return err
}

func (c *guardClient) Retrieve(ctx context.Context, path string) ([]byte, error) {
	result, err := c.request(ctx, event.RetrieveTopic, &types.RetrieveMessage{
		RequestID: c.newID(),
		Path:      path,
	})
	if err != nil {
		return nil, err
	}
	return result.Contents, nil
}

func (c *guardClient) AddUser(ctx context.Context, principal types.Principal) error {
	msg := &types.AddUserMessage{
		RequestID: c.newID(),
		Caller:    c.principal,
		Principal: principal,
		Timestamp: c.now().Unix(),
	}
	if err := c.sign(msg, &msg.Signature); err != nil {
		return fmt.Errorf("AddUser: %w", err)
	}
	_, err := c.request(ctx, event.AddUserTopic, msg)
	return err
}

func (c *guardClient) OnMutation(callback func(topic string, evt event.MutationEvent)) (messaging.Subscription, error) {
	return c.pubsub.Subscribe(c.prefix+".event.>", func(natMsg *nats.Msg) {
		var evt event.MutationEvent
		if err := json.Unmarshal(natMsg.Data, &evt); err != nil {
			return
		}
		callback(natMsg.Subject, evt)
	})
}

func (c *guardClient) sign(msg types.SignedMessage, signature *[]byte) error {
	if c.signer == nil {
		return fmt.Errorf("no signer configured")
	}
	raw, err := msg.Raw()
	if err != nil {
		return fmt.Errorf("raw payload error: %w", err)
	}
	sig, err := c.signer.Sign(raw)
	if err != nil {
		return fmt.Errorf("failed to sign message: %w", err)
	}
	*signature = sig
	return nil
}

// request sends msg and decodes the reply. Rejections come back as errors
// matching the core sentinels.
func (c *guardClient) request(ctx context.Context, topic string, msg any) (event.Result, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return event.Result{}, fmt.Errorf("marshal error: %w", err)
	}

	subject := c.prefix + "." + topic
	reply, err := c.requester.Request(ctx, subject, payload)
	if err != nil {
		return event.Result{}, fmt.Errorf("request %s failed: %w", subject, err)
	}

	var result event.Result
	if err := json.Unmarshal(reply, &result); err != nil {
		return event.Result{}, fmt.Errorf("invalid reply on %s: %w", subject, err)
	}
	return result, result.Err()
}
