// Package filestore is the secure device store used by the CLI: every value
// lives in one file sealed with XChaCha20-Poly1305 under a key derived from a
// passphrase with Argon2id.
package filestore

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	apperrors "github.com/jrsteele09/flashybank-client/internal/errors"
	"github.com/jrsteele09/flashybank-client/storage"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	fileVersion = 1
	saltLength  = 16

	// upper bounds accepted for the Argon2id cost read from a file
	maxKDFTime   = 64
	maxKDFMemory = 1 << 20 // KiB
)

var additionalData = []byte("flashybank-store-v1")

var _ storage.Store = (*FileStore)(nil)

// KDFParams are the Argon2id cost parameters. They are written to the file so
// a store can always be reopened with the parameters it was sealed with.
type KDFParams struct {
	Time    uint32 `json:"time"`
	Memory  uint32 `json:"memory"` // KiB
	Threads uint8  `json:"threads"`
}

// DefaultKDFParams follow the RFC 9106 second recommended option.
var DefaultKDFParams = KDFParams{Time: 3, Memory: 64 * 1024, Threads: 4}

func (p KDFParams) validate() error {
	switch {
	case p.Time < 1 || p.Time > maxKDFTime:
		return fmt.Errorf("kdf time %d out of range", p.Time)
	case p.Threads < 1:
		return errors.New("kdf threads must be at least 1")
	case p.Memory < 8*uint32(p.Threads) || p.Memory > maxKDFMemory:
		return fmt.Errorf("kdf memory %d KiB out of range", p.Memory)
	}
	return nil
}

// check rejects an envelope whose parameters would make key derivation or
// decryption fail outright.
func (e envelope) check() error {
	if e.Version != fileVersion {
		return fmt.Errorf("unsupported version %d", e.Version)
	}
	if len(e.Salt) != saltLength {
		return fmt.Errorf("salt is %d bytes", len(e.Salt))
	}
	if len(e.Nonce) != chacha20poly1305.NonceSizeX {
		return fmt.Errorf("nonce is %d bytes", len(e.Nonce))
	}
	return e.KDF.validate()
}

type envelope struct {
	Version int       `json:"version"`
	KDF     KDFParams `json:"kdf"`
	Salt    []byte    `json:"salt"`
	Nonce   []byte    `json:"nonce"`
	Data    []byte    `json:"data"`
}

type FileStore struct {
	path   string
	kdf    KDFParams
	salt   []byte
	key    []byte
	values map[string]string
	lock   sync.RWMutex
}

// Option configures a FileStore
type Option func(*FileStore)

// WithKDFParams overrides the Argon2id parameters used for a new file.
// Existing files keep the parameters stored in them.
func WithKDFParams(p KDFParams) Option {
	return func(s *FileStore) {
		s.kdf = p
	}
}

// Open loads the store at path, creating it lazily on first write. A wrong
// passphrase yields ErrStoreLocked.
func Open(path, passphrase string, options ...Option) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("[filestore.Open] path is required")
	}
	if passphrase == "" {
		return nil, errors.New("[filestore.Open] passphrase is required")
	}

	store := &FileStore{
		path:   path,
		kdf:    DefaultKDFParams,
		values: make(map[string]string),
	}
	for _, opt := range options {
		opt(store)
	}

	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if err := store.kdf.validate(); err != nil {
			return nil, fmt.Errorf("[filestore.Open] %w", err)
		}
		salt := make([]byte, saltLength)
		if _, err := io.ReadFull(rand.Reader, salt); err != nil {
			return nil, fmt.Errorf("[filestore.Open] salt: %w", err)
		}
		store.salt = salt
		store.key = deriveKey(passphrase, salt, store.kdf)
		return store, nil
	case err != nil:
		return nil, fmt.Errorf("[filestore.Open] read %s: %w", path, err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrStoreCorrupt, "[filestore.Open] %s", path)
	}
	if err := env.check(); err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrStoreCorrupt, "[filestore.Open] %s: %v", path, err)
	}

	store.kdf = env.KDF
	store.salt = env.Salt
	store.key = deriveKey(passphrase, env.Salt, env.KDF)

	aead, err := chacha20poly1305.NewX(store.key)
	if err != nil {
		return nil, fmt.Errorf("[filestore.Open] cipher: %w", err)
	}
	plain, err := aead.Open(nil, env.Nonce, env.Data, additionalData)
	if err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrStoreLocked, "[filestore.Open] %s", path)
	}
	if err := json.Unmarshal(plain, &store.values); err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrStoreCorrupt, "[filestore.Open] payload")
	}
	return store, nil
}

func (s *FileStore) Get(_ context.Context, key string) (string, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	v, ok := s.values[key]
	if !ok {
		return "", storage.ErrNotFound
	}
	return v, nil
}

func (s *FileStore) Set(_ context.Context, key, value string) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	next := s.copyValues()
	next[key] = value
	return s.commit(next)
}

func (s *FileStore) Delete(_ context.Context, key string) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if _, ok := s.values[key]; !ok {
		return nil
	}
	next := s.copyValues()
	delete(next, key)
	return s.commit(next)
}

func (s *FileStore) copyValues() map[string]string {
	next := make(map[string]string, len(s.values)+1)
	for k, v := range s.values {
		next[k] = v
	}
	return next
}

// commit seals values and atomically replaces the file. The in-memory map only
// changes once the file is on disk.
func (s *FileStore) commit(values map[string]string) error {
	plain, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("[FileStore.commit] marshal: %w", err)
	}

	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return fmt.Errorf("[FileStore.commit] cipher: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return fmt.Errorf("[FileStore.commit] nonce: %w", err)
	}

	raw, err := json.Marshal(envelope{
		Version: fileVersion,
		KDF:     s.kdf,
		Salt:    s.salt,
		Nonce:   nonce,
		Data:    aead.Seal(nil, nonce, plain, additionalData),
	})
	if err != nil {
		return fmt.Errorf("[FileStore.commit] marshal envelope: %w", err)
	}

	if err := writeFileAtomic(s.path, raw); err != nil {
		return fmt.Errorf("[FileStore.commit] %w", err)
	}
	s.values = values
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".flashy-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}

func deriveKey(passphrase string, salt []byte, p KDFParams) []byte {
	return argon2.IDKey([]byte(passphrase), salt, p.Time, p.Memory, p.Threads, chacha20poly1305.KeySize)
}
