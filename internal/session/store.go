package session

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/example/selfie-check/internal/logging"
)

// ErrKeyNotFound is returned by KV implementations for absent keys.
var ErrKeyNotFound = errors.New("key not found")

// KV abstracts the persistent client storage the credentials live in.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Ping(ctx context.Context) error
}

// Store reads session credentials from client storage. It never writes them.
type Store struct {
	kv     KV
	prefix string
	logger *zap.Logger
}

// NewStore builds a store over kv. Keys are looked up as prefix+"username" and prefix+"token".
func NewStore(kv KV, prefix string, logger *zap.Logger) *Store {
	return &Store{kv: kv, prefix: prefix, logger: logger.Named("session_store")}
}

// Load returns whatever credentials are present. Absent keys come back as empty strings so that
// callers decide what a partial pair means; storage failures are returned as errors.
func (s *Store) Load(ctx context.Context) (Credentials, error) {
	username, err := s.lookup(ctx, UsernameKey)
	if err != nil {
		return Credentials{}, err
	}
	token, err := s.lookup(ctx, TokenKey)
	if err != nil {
		return Credentials{}, err
	}
	return Credentials{Username: username, Token: token}, nil
}

// Ping checks that the underlying storage answers.
func (s *Store) Ping(ctx context.Context) error {
	return s.kv.Ping(ctx)
}

func (s *Store) lookup(ctx context.Context, key string) (string, error) {
	value, err := s.kv.Get(ctx, s.prefix+key)
	if errors.Is(err, ErrKeyNotFound) {
		s.logger.Debug("client storage key absent", zap.String("key", s.prefix+key))
		return "", nil
	}
	if err != nil {
		return "", logging.NewOperationError("session.load_"+key, "", err)
	}
	return value, nil
}
