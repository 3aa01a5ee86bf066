package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/speps/go-hashids/v2"
)

// ReferenceGenerator produces the opaque, gateway-facing transaction
// references. These are what external parties see and quote back to us;
// they are distinct from the internal surrogate keys.
type ReferenceGenerator struct {
	hash *hashids.HashID
}

func NewReferenceGenerator(salt string) (*ReferenceGenerator, error) {
	hd := hashids.NewData()
	hd.Salt = salt
	hd.MinLength = 16
	hash, err := hashids.NewWithData(hd)
	if err != nil {
		return nil, fmt.Errorf("could not initialise reference generator: %w", err)
	}

	return &ReferenceGenerator{hash: hash}, nil
}

// NewReference encodes the current timestamp together with a random
// component, so two transactions created in the same millisecond still
// get distinct references.
func (g *ReferenceGenerator) NewReference() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1<<30))
	if err != nil {
		return "", fmt.Errorf("could not read random source: %w", err)
	}

	ref, err := g.hash.EncodeInt64([]int64{time.Now().UnixMilli(), n.Int64()})
	if err != nil {
		return "", fmt.Errorf("could not encode reference: %w", err)
	}

	return ref, nil
}
