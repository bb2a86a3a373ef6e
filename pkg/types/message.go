package types

import (
	"encoding/json"
	"time"
)

// SignedMessage is a mutating request whose caller is proven by a signature over Raw.
// The request id and issue time are covered by the signature.
type SignedMessage interface {
	Raw() ([]byte, error)
	Sig() []byte
	CallerID() Principal
	ID() string
	IssuedAt() time.Time
}

type StoreMessage struct {
	RequestID string    `json:"request_id"`
	Caller    Principal `json:"caller"`
	Path      string    `json:"path"`
	Contents  []byte    `json:"contents"`
	Timestamp int64     `json:"timestamp"`
	Signature []byte    `json:"signature,omitempty"`
}

func (m *StoreMessage) Raw() ([]byte, error) {
	unsigned := *m
	unsigned.Signature = nil
	return json.Marshal(unsigned)
}

func (m *StoreMessage) Sig() []byte {
	return m.Signature
}

func (m *StoreMessage) CallerID() Principal {
	return m.Caller
}

func (m *StoreMessage) ID() string {
	return m.RequestID
}

func (m *StoreMessage) IssuedAt() time.Time {
	return time.Unix(m.Timestamp, 0)
}

type AddUserMessage struct {
	RequestID string    `json:"request_id"`
	Caller    Principal `json:"caller"`
	Principal Principal `json:"principal"`
	Timestamp int64     `json:"timestamp"`
	Signature []byte    `json:"signature,omitempty"`
}

func (m *AddUserMessage) Raw() ([]byte, error) {
	unsigned := *m
	unsigned.Signature = nil
	return json.Marshal(unsigned)
}

func (m *AddUserMessage) Sig() []byte {
	return m.Signature
}

func (m *AddUserMessage) CallerID() Principal {
	return m.Caller
}

func (m *AddUserMessage) ID() string {
	return m.RequestID
}

func (m *AddUserMessage) IssuedAt() time.Time {
	return time.Unix(m.Timestamp, 0)
}

// RetrieveMessage is unsigned; reads bypass authorization.
type RetrieveMessage struct {
	RequestID string `json:"request_id"`
	Path      string `json:"path"`
}
