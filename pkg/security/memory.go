package security

import (
	"runtime"
)

// ZeroBytes overwrites data with zeros so key material does not linger in
// memory after use.
func ZeroBytes(data []byte) {
	for i := range data {
		data[i] = 0
	}
}

// SecureBytes holds a private copy of secret bytes and wipes it on Clear or
// when garbage collected.
type SecureBytes struct {
	data []byte
}

func NewSecureBytes(data []byte) *SecureBytes {
	copied := make([]byte, len(data))
	copy(copied, data)

	sb := &SecureBytes{data: copied}
	runtime.SetFinalizer(sb, (*SecureBytes).zero)
	return sb
}

// Bytes returns the underlying slice; it is invalid after Clear.
func (sb *SecureBytes) Bytes() []byte {
	return sb.data
}

func (sb *SecureBytes) Len() int {
	return len(sb.data)
}

// Clear zeros the data and removes the finalizer.
func (sb *SecureBytes) Clear() {
	sb.zero()
	runtime.SetFinalizer(sb, nil)
}

func (sb *SecureBytes) zero() {
	if sb.data != nil {
		ZeroBytes(sb.data)
		sb.data = nil
	}
}
