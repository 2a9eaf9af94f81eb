// Package codec turns entity records into encrypted, self-describing byte
// payloads and back.
package codec

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/amanthanvi/posvault/internal/crypto"
	"github.com/google/uuid"
)

const envelopeVersion = 1

var (
	// ErrCodec covers every decode failure: malformed bytes, unknown type,
	// identity mismatch and failed decryption.
	ErrCodec = errors.New("codec: cannot decode record")

	ErrUnknownType = errors.New("codec: unknown record type")
)

// envelope is the stored form. Type and ID travel in clear so a payload can
// be routed without decrypting it; both are also bound into the AEAD.
type envelope struct {
	Version    int    `json:"v"`
	Type       string `json:"type"`
	ID         string `json:"id"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ct"`
}

// Header is the clear part of an encoded record.
type Header struct {
	Version int
	Type    string
	ID      uuid.UUID
}

type Codec struct {
	cipher *crypto.RecordCipher

	mu    sync.RWMutex
	types map[string]struct{}
}

// New loads the master key once from keys and registers the given type tags.
func New(keys crypto.KeyProvider, typeTags ...string) (*Codec, error) {
	if keys == nil {
		return nil, fmt.Errorf("new codec: key provider is nil")
	}
	master, err := keys.MasterKey()
	if err != nil {
		return nil, fmt.Errorf("new codec: load master key: %w", err)
	}
	c := &Codec{
		cipher: crypto.NewRecordCipher(master),
		types:  map[string]struct{}{},
	}
	for _, tag := range typeTags {
		c.Register(tag)
	}
	return c, nil
}

func (c *Codec) Register(typeTag string) {
	if typeTag == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.types[typeTag] = struct{}{}
}

func (c *Codec) Types() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.types))
	for tag := range c.types {
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}

func (c *Codec) Encode(typeTag string, id uuid.UUID, record any) ([]byte, error) {
	if !c.known(typeTag) {
		return nil, fmt.Errorf("encode %s: %w", typeTag, ErrUnknownType)
	}
	if id == uuid.Nil {
		return nil, fmt.Errorf("encode %s: nil id", typeTag)
	}

	plaintext, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("encode %s/%s: marshal: %w", typeTag, id, err)
	}
	sealed, err := c.cipher.Seal(typeTag, id.String(), plaintext)
	if err != nil {
		return nil, fmt.Errorf("encode %s/%s: %w", typeTag, id, err)
	}

	out, err := json.Marshal(envelope{
		Version:    envelopeVersion,
		Type:       typeTag,
		ID:         id.String(),
		Nonce:      sealed.Nonce,
		Ciphertext: sealed.Ciphertext,
	})
	if err != nil {
		return nil, fmt.Errorf("encode %s/%s: marshal envelope: %w", typeTag, id, err)
	}
	return out, nil
}

// Decode verifies that data holds a record of typeTag with identity id and
// unmarshals it into out.
func (c *Codec) Decode(data []byte, typeTag string, id uuid.UUID, out any) error {
	env, err := parseEnvelope(data)
	if err != nil {
		return err
	}
	if !c.known(typeTag) || env.Type != typeTag {
		return fmt.Errorf("%w: %s", ErrCodec, ErrUnknownType)
	}
	if env.ID != id.String() {
		return fmt.Errorf("%w: identity mismatch", ErrCodec)
	}

	plaintext, err := c.cipher.Open(typeTag, env.ID, crypto.Sealed{Nonce: env.Nonce, Ciphertext: env.Ciphertext})
	if err != nil {
		// Wrong key, missing key and tampering are reported the same way.
		return fmt.Errorf("%w: authentication failed", ErrCodec)
	}
	if err := json.Unmarshal(plaintext, out); err != nil {
		return fmt.Errorf("%w: malformed payload", ErrCodec)
	}
	return nil
}

// Inspect reads the clear header without decrypting.
func Inspect(data []byte) (Header, error) {
	env, err := parseEnvelope(data)
	if err != nil {
		return Header{}, err
	}
	id, err := uuid.Parse(env.ID)
	if err != nil {
		return Header{}, fmt.Errorf("%w: malformed id", ErrCodec)
	}
	return Header{Version: env.Version, Type: env.Type, ID: id}, nil
}

func (c *Codec) Close() {
	if c == nil {
		return
	}
	c.cipher.Destroy()
}

func (c *Codec) known(typeTag string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.types[typeTag]
	return ok
}

func parseEnvelope(data []byte) (envelope, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return envelope{}, fmt.Errorf("%w: malformed envelope", ErrCodec)
	}
	if env.Version != envelopeVersion {
		return envelope{}, fmt.Errorf("%w: unsupported envelope version %d", ErrCodec, env.Version)
	}
	if env.Type == "" || env.ID == "" || len(env.Nonce) == 0 || len(env.Ciphertext) == 0 {
		return envelope{}, fmt.Errorf("%w: incomplete envelope", ErrCodec)
	}
	return env, nil
}

// EncodeRecord is Encode for a typed record.
func EncodeRecord[T any](c *Codec, typeTag string, id uuid.UUID, record T) ([]byte, error) {
	return c.Encode(typeTag, id, record)
}

// DecodeRecord is Decode returning a typed record.
func DecodeRecord[T any](c *Codec, data []byte, typeTag string, id uuid.UUID) (T, error) {
	var out T
	if err := c.Decode(data, typeTag, id, &out); err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}
