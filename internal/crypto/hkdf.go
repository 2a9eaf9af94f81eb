package crypto

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const recordKeyInfoVersion = "posvault-record-v1"

var ErrInvalidHKDFInput = errors.New("invalid hkdf input")

func DeriveHKDFSHA256(ikm, salt, info []byte, length int) ([]byte, error) {
	if len(ikm) == 0 {
		return nil, fmt.Errorf("%w: ikm must not be empty", ErrInvalidHKDFInput)
	}
	if length <= 0 {
		return nil, fmt.Errorf("%w: length must be > 0", ErrInvalidHKDFInput)
	}

	r := hkdf.New(sha256.New, ikm, salt, info)
	out := make([]byte, length)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, fmt.Errorf("derive hkdf-sha256 output: %w", err)
	}
	return out, nil
}

// DeriveRecordKey returns the data key for one stored record. Every
// (typeTag, recordID) pair gets its own key.
func DeriveRecordKey(master []byte, typeTag, recordID string) ([]byte, error) {
	info := []byte(recordKeyInfoVersion + ":" + typeTag + ":" + recordID)
	key, err := DeriveHKDFSHA256(master, nil, info, KeySize)
	if err != nil {
		return nil, fmt.Errorf("derive record key: %w", err)
	}
	return key, nil
}
