package types

import (
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
)

type KeyType string

const (
	KeyTypeEd25519 KeyType = "ed25519"
	KeyTypeP256    KeyType = "p256"
)

var ErrEmptyPrincipal = errors.New("principal is empty")

// Principal identifies a caller. The core only compares and orders principals;
// the transport mints them as "<key type>:<hex public key>".
type Principal string

func (p Principal) String() string {
	return string(p)
}

func (p Principal) Validate() error {
	if strings.TrimSpace(string(p)) == "" {
		return ErrEmptyPrincipal
	}
	return nil
}

// Less reports whether p sorts before other.
func (p Principal) Less(other Principal) bool {
	return p < other
}

// PrincipalFromPublicKey builds the principal of a caller holding the given public key.
func PrincipalFromPublicKey(keyType KeyType, publicKey []byte) Principal {
	return Principal(fmt.Sprintf("%s:%s", keyType, hex.EncodeToString(publicKey)))
}

// KeyMaterial splits a transport-minted principal into its key type and public key.
func (p Principal) KeyMaterial() (KeyType, []byte, error) {
	algo, keyHex, ok := strings.Cut(string(p), ":")
	if !ok {
		return "", nil, fmt.Errorf("principal %q has no key type prefix", p)
	}

	keyType := KeyType(algo)
	if keyType != KeyTypeEd25519 && keyType != KeyTypeP256 {
		return "", nil, fmt.Errorf("unsupported key type: %s", algo)
	}

	publicKey, err := hex.DecodeString(keyHex)
	if err != nil {
		return "", nil, fmt.Errorf("invalid public key hex in principal: %w", err)
	}
	return keyType, publicKey, nil
}

// SortPrincipals orders principals in place.
func SortPrincipals(principals []Principal) {
	sort.Slice(principals, func(i, j int) bool {
		return principals[i].Less(principals[j])
	})
}
