// Package digest decides whether a named snapshot changed since it was last
// published.
//
// A payload is reduced to its JSON value, encoded with Core Deterministic
// CBOR (sorted map keys, shortest encodings) and hashed with BLAKE3-256.
// Two payloads that marshal to equal JSON values therefore share a digest
// regardless of map iteration or field order.
package digest

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"github.com/zeebo/blake3"
)

// Digest is a BLAKE3-256 content hash.
type Digest [32]byte

// String returns the hex encoding of d.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

var encMode cbor.EncMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("digest: CBOR encoder initialization failed: " + err.Error())
	}
}

// Of returns the digest of payload's JSON value.
func Of(payload any) (Digest, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Digest{}, fmt.Errorf("digest: marshal payload: %w", err)
	}
	return OfJSON(raw)
}

// OfJSON returns the digest of an encoded JSON value. Numbers are compared
// as float64, so 1 and 1.0 are equal.
func OfJSON(raw []byte) (Digest, error) {
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return Digest{}, fmt.Errorf("digest: decode payload: %w", err)
	}
	canonical, err := encMode.Marshal(value)
	if err != nil {
		return Digest{}, fmt.Errorf("digest: encode payload: %w", err)
	}
	return blake3.Sum256(canonical), nil
}

// Detector remembers the last digest per snapshot name. It is safe for
// concurrent use.
type Detector struct {
	mu   sync.Mutex
	last map[string]Digest
}

// NewDetector returns an empty detector.
func NewDetector() *Detector {
	return &Detector{last: make(map[string]Digest)}
}

// Changed reports whether payload differs from the last payload recorded
// for name, recording it if so. The first payload for a name is always a
// change. An encoding error leaves the stored digest untouched.
func (d *Detector) Changed(name string, payload any) (bool, error) {
	sum, err := Of(payload)
	if err != nil {
		return false, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if prev, ok := d.last[name]; ok && prev == sum {
		return false, nil
	}
	d.last[name] = sum
	return true, nil
}

// Forget drops the stored digest for name so its next payload is a change.
func (d *Detector) Forget(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.last, name)
}

// Reset drops every stored digest.
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	clear(d.last)
}

// Len returns the number of names with a stored digest.
func (d *Detector) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.last)
}
