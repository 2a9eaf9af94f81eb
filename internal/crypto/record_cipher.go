package crypto

import (
	"errors"
	"fmt"

	"github.com/awnumar/memguard"
)

var ErrCipherNotReady = errors.New("record cipher not ready")

// Sealed is one encrypted record payload.
type Sealed struct {
	Nonce      []byte
	Ciphertext []byte
}

// RecordCipher encrypts whole record payloads with a key derived per
// (type tag, record id). The AAD binds the ciphertext to the same pair, so a
// payload copied under another path fails to open.
type RecordCipher struct {
	master *memguard.LockedBuffer
}

func NewRecordCipher(master *memguard.LockedBuffer) *RecordCipher {
	return &RecordCipher{master: master}
}

func (rc *RecordCipher) Seal(typeTag, recordID string, plaintext []byte) (Sealed, error) {
	if err := rc.ensureReady(); err != nil {
		return Sealed{}, err
	}

	key, err := DeriveRecordKey(rc.master.Bytes(), typeTag, recordID)
	if err != nil {
		return Sealed{}, err
	}
	defer memguard.WipeBytes(key)

	nonce, err := randomBytes(NonceSize)
	if err != nil {
		return Sealed{}, fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext, err := SealXChaCha20Poly1305(key, nonce, plaintext, recordAssociatedData(typeTag, recordID))
	if err != nil {
		return Sealed{}, fmt.Errorf("seal record: %w", err)
	}
	return Sealed{Nonce: nonce, Ciphertext: ciphertext}, nil
}

func (rc *RecordCipher) Open(typeTag, recordID string, sealed Sealed) ([]byte, error) {
	if err := rc.ensureReady(); err != nil {
		return nil, err
	}

	key, err := DeriveRecordKey(rc.master.Bytes(), typeTag, recordID)
	if err != nil {
		return nil, err
	}
	defer memguard.WipeBytes(key)

	return OpenXChaCha20Poly1305(key, sealed.Nonce, sealed.Ciphertext, recordAssociatedData(typeTag, recordID))
}

func (rc *RecordCipher) Destroy() {
	if rc == nil || rc.master == nil {
		return
	}
	if rc.master.IsAlive() {
		rc.master.Destroy()
	}
	rc.master = nil
}

func (rc *RecordCipher) ensureReady() error {
	if rc == nil || rc.master == nil || !rc.master.IsAlive() {
		return ErrCipherNotReady
	}
	return nil
}

func recordAssociatedData(typeTag, recordID string) []byte {
	return []byte("posvault-record:" + recordKeyInfoVersion + ":" + typeTag + ":" + recordID)
}
