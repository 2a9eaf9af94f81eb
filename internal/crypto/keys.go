package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/awnumar/memguard"
)

const (
	KeyFileModeRaw        = "raw"
	KeyFileModePassphrase = "passphrase"

	keyFileVersion       = 1
	keyCommitmentContext = "posvault-key-commitment"
)

var (
	ErrInvalidKeyFile     = errors.New("invalid key file")
	ErrCommitmentMismatch = errors.New("key commitment mismatch")
	ErrPassphraseRequired = errors.New("passphrase required")
)

// KeyProvider supplies the master key. Each call returns a buffer owned by
// the caller.
type KeyProvider interface {
	MasterKey() (*memguard.LockedBuffer, error)
}

type StaticKeyProvider struct {
	key *memguard.LockedBuffer
}

func NewStaticKeyProvider(key *memguard.LockedBuffer) *StaticKeyProvider {
	return &StaticKeyProvider{key: key}
}

func (p *StaticKeyProvider) MasterKey() (*memguard.LockedBuffer, error) {
	if p == nil || p.key == nil || !p.key.IsAlive() {
		return nil, ErrCipherNotReady
	}
	return cloneBuffer(p.key.Bytes()), nil
}

// KeyFile is the on-disk key descriptor written by `posvault init`.
type KeyFile struct {
	Version    int           `json:"version"`
	Mode       string        `json:"mode"`
	Key        string        `json:"key,omitempty"`
	Salt       string        `json:"salt,omitempty"`
	Argon2     *Argon2Params `json:"argon2,omitempty"`
	Commitment string        `json:"commitment"`
}

type FileKeyProvider struct {
	path       string
	passphrase func() ([]byte, error)
}

// NewFileKeyProvider reads key material from path. passphrase is consulted
// only for passphrase-mode key files and may be nil otherwise.
func NewFileKeyProvider(path string, passphrase func() ([]byte, error)) *FileKeyProvider {
	return &FileKeyProvider{path: path, passphrase: passphrase}
}

func (p *FileKeyProvider) MasterKey() (*memguard.LockedBuffer, error) {
	kf, err := ReadKeyFile(p.path)
	if err != nil {
		return nil, err
	}

	commitment, err := hex.DecodeString(kf.Commitment)
	if err != nil || len(commitment) == 0 {
		return nil, fmt.Errorf("%w: commitment is malformed", ErrInvalidKeyFile)
	}

	var raw []byte
	switch kf.Mode {
	case KeyFileModeRaw:
		raw, err = hex.DecodeString(kf.Key)
		if err != nil || len(raw) != KeySize {
			return nil, fmt.Errorf("%w: key must be %d hex-encoded bytes", ErrInvalidKeyFile, KeySize)
		}
	case KeyFileModePassphrase:
		if p.passphrase == nil {
			return nil, ErrPassphraseRequired
		}
		if kf.Argon2 == nil {
			return nil, fmt.Errorf("%w: argon2 parameters missing", ErrInvalidKeyFile)
		}
		salt, err := hex.DecodeString(kf.Salt)
		if err != nil {
			return nil, fmt.Errorf("%w: salt is malformed", ErrInvalidKeyFile)
		}
		passphrase, err := p.passphrase()
		if err != nil {
			return nil, fmt.Errorf("read passphrase: %w", err)
		}
		defer memguard.WipeBytes(passphrase)
		raw, err = DeriveKeyFromPassphrase(passphrase, salt, *kf.Argon2)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: unknown mode %q", ErrInvalidKeyFile, kf.Mode)
	}

	if !hmac.Equal(ComputeCommitmentTag(raw), commitment) {
		memguard.WipeBytes(raw)
		return nil, ErrCommitmentMismatch
	}
	return memguard.NewBufferFromBytes(raw), nil
}

func GenerateMasterKey() (*memguard.LockedBuffer, error) {
	raw, err := randomBytes(KeySize)
	if err != nil {
		return nil, fmt.Errorf("generate master key: %w", err)
	}
	return memguard.NewBufferFromBytes(raw), nil
}

// WriteRawKeyFile stores key in path. The file is created with mode 0600 and
// must not already exist.
func WriteRawKeyFile(path string, key *memguard.LockedBuffer) error {
	if key == nil || !key.IsAlive() {
		return fmt.Errorf("write key file: %w", ErrCipherNotReady)
	}
	return writeKeyFile(path, KeyFile{
		Version:    keyFileVersion,
		Mode:       KeyFileModeRaw,
		Key:        hex.EncodeToString(key.Bytes()),
		Commitment: hex.EncodeToString(ComputeCommitmentTag(key.Bytes())),
	})
}

func WritePassphraseKeyFile(path string, passphrase []byte, params Argon2Params) error {
	salt, err := GenerateSalt(params.SaltLen)
	if err != nil {
		return fmt.Errorf("write key file: %w", err)
	}
	raw, err := DeriveKeyFromPassphrase(passphrase, salt, params)
	if err != nil {
		return fmt.Errorf("write key file: %w", err)
	}
	defer memguard.WipeBytes(raw)

	return writeKeyFile(path, KeyFile{
		Version:    keyFileVersion,
		Mode:       KeyFileModePassphrase,
		Salt:       hex.EncodeToString(salt),
		Argon2:     &params,
		Commitment: hex.EncodeToString(ComputeCommitmentTag(raw)),
	})
}

func ReadKeyFile(path string) (KeyFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return KeyFile{}, fmt.Errorf("read key file: %w", err)
	}
	var kf KeyFile
	if err := json.Unmarshal(data, &kf); err != nil {
		return KeyFile{}, fmt.Errorf("%w: %v", ErrInvalidKeyFile, err)
	}
	if kf.Version != keyFileVersion {
		return KeyFile{}, fmt.Errorf("%w: unsupported version %d", ErrInvalidKeyFile, kf.Version)
	}
	return kf, nil
}

func ComputeCommitmentTag(key []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(keyCommitmentContext))
	return mac.Sum(nil)
}

func writeKeyFile(path string, kf KeyFile) error {
	if path == "" {
		return fmt.Errorf("write key file: empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("write key file: create dir: %w", err)
	}
	data, err := json.MarshalIndent(kf, "", "  ")
	if err != nil {
		return fmt.Errorf("write key file: marshal: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("write key file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("write key file: %w", err)
	}
	return f.Close()
}

func cloneBuffer(src []byte) *memguard.LockedBuffer {
	dup := make([]byte, len(src))
	copy(dup, src)
	// NewBufferFromBytes wipes dup.
	return memguard.NewBufferFromBytes(dup)
}
