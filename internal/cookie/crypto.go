package cookie

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/tink-crypto/tink-go/v2/aead"
	"github.com/tink-crypto/tink-go/v2/insecurecleartextkeyset"
	"github.com/tink-crypto/tink-go/v2/keyset"
	"github.com/tink-crypto/tink-go/v2/tink"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/sadam21/gooddata-server-oauth2/internal/domain"
)

const defaultKeysetCacheSize = 500

// KeysetStore persists the per-organization cookie keyset.
type KeysetStore interface {
	GetCookieSecurityProperties(ctx context.Context, orgID string) (domain.CookieSecurityProperties, error)
	RotateCookieSecurityProperties(ctx context.Context, orgID string, expectedLastRotation time.Time, next domain.CookieSecurityProperties) (bool, error)
}

// Crypto encrypts and decrypts cookie payloads for an organization.
type Crypto interface {
	Encrypt(ctx context.Context, orgID string, plaintext, associatedData []byte) ([]byte, error)
	Decrypt(ctx context.Context, orgID string, ciphertext, associatedData []byte) ([]byte, error)
}

type loadedKeyset struct {
	props     domain.CookieSecurityProperties
	primitive tink.AEAD
}

// CryptoService encrypts with the organization's primary key and decrypts
// with any key of its keyset. The keyset is rotated lazily on access once
// the rotation interval has elapsed.
type CryptoService struct {
	store  KeysetStore
	cache  *expirable.LRU[string, *loadedKeyset]
	group  singleflight.Group
	now    func() time.Time
	logger *zap.Logger
}

var _ Crypto = (*CryptoService)(nil)

// CryptoOption customises a CryptoService.
type CryptoOption func(*CryptoService)

// WithClock overrides the clock used for rotation decisions.
func WithClock(now func() time.Time) CryptoOption {
	return func(s *CryptoService) { s.now = now }
}

// NewCryptoService constructs the cookie crypto service.
func NewCryptoService(store KeysetStore, cacheSize int, cacheTTL time.Duration, logger *zap.Logger, opts ...CryptoOption) *CryptoService {
	if cacheSize <= 0 {
		cacheSize = defaultKeysetCacheSize
	}
	s := &CryptoService{
		store:  store,
		cache:  expirable.NewLRU[string, *loadedKeyset](cacheSize, nil, cacheTTL),
		now:    time.Now,
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Encrypt seals plaintext with the primary key of orgID.
func (s *CryptoService) Encrypt(ctx context.Context, orgID string, plaintext, associatedData []byte) ([]byte, error) {
	ks, err := s.keyset(ctx, orgID)
	if err != nil {
		return nil, err
	}
	ciphertext, err := ks.primitive.Encrypt(plaintext, associatedData)
	if err != nil {
		return nil, fmt.Errorf("encrypt cookie: %w", err)
	}
	return ciphertext, nil
}

// Decrypt opens ciphertext with any key of orgID's keyset. Every
// cryptographic failure is reported as domain.ErrDecryptionFailed.
func (s *CryptoService) Decrypt(ctx context.Context, orgID string, ciphertext, associatedData []byte) ([]byte, error) {
	ks, err := s.keyset(ctx, orgID)
	if err != nil {
		return nil, err
	}
	plaintext, err := ks.primitive.Decrypt(ciphertext, associatedData)
	if err != nil {
		return nil, domain.ErrDecryptionFailed
	}
	return plaintext, nil
}

func (s *CryptoService) keyset(ctx context.Context, orgID string) (*loadedKeyset, error) {
	if cached, ok := s.cache.Get(orgID); ok && !cached.props.RotationDue(s.now()) {
		return cached, nil
	}
	ks, shared, err := s.do(ctx, orgID)
	// A shared load runs on the leader's context. When only the leader was
	// cancelled, load again on our own.
	if err != nil && shared && isContextError(err) && ctx.Err() == nil {
		ks, _, err = s.do(ctx, orgID)
	}
	return ks, err
}

func (s *CryptoService) do(ctx context.Context, orgID string) (*loadedKeyset, bool, error) {
	v, err, shared := s.group.Do(orgID, func() (any, error) {
		if cached, ok := s.cache.Get(orgID); ok && !cached.props.RotationDue(s.now()) {
			return cached, nil
		}
		loaded, err := s.load(ctx, orgID)
		if err != nil {
			return nil, err
		}
		s.cache.Add(orgID, loaded)
		return loaded, nil
	})
	if err != nil {
		return nil, shared, err
	}
	return v.(*loadedKeyset), shared, nil
}

func (s *CryptoService) load(ctx context.Context, orgID string) (*loadedKeyset, error) {
	props, err := s.store.GetCookieSecurityProperties(ctx, orgID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		return nil, storeError("load cookie keyset", err)
	}

	if props.RotationDue(s.now()) {
		props, err = s.rotate(ctx, orgID, props)
		if err != nil {
			return nil, err
		}
	}
	return parseKeyset(props)
}

// storeError reports a keyset store failure as upstream unless the caller's
// context ended.
func storeError(op string, err error) error {
	if isContextError(err) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return domain.NewUpstreamError(op, err)
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// rotate stores a keyset whose new primary key replaces the current one.
// When another process rotated first, its keyset is used instead.
func (s *CryptoService) rotate(ctx context.Context, orgID string, current domain.CookieSecurityProperties) (domain.CookieSecurityProperties, error) {
	serialized, err := rotateKeyset(current.Keyset)
	if err != nil {
		return domain.CookieSecurityProperties{}, fmt.Errorf("rotate cookie keyset: %w", err)
	}
	next := domain.CookieSecurityProperties{
		Keyset:           serialized,
		LastRotation:     s.now().UTC().Truncate(time.Microsecond),
		RotationInterval: current.RotationInterval,
	}

	won, err := s.store.RotateCookieSecurityProperties(ctx, orgID, current.LastRotation, next)
	if err != nil {
		return domain.CookieSecurityProperties{}, storeError("store cookie keyset", err)
	}
	if won {
		s.log().Info("cookie keyset rotated", zap.String("org_id", orgID), zap.Time("last_rotation", next.LastRotation))
		return next, nil
	}

	s.log().Debug("cookie keyset rotated concurrently, reloading", zap.String("org_id", orgID))
	winner, err := s.store.GetCookieSecurityProperties(ctx, orgID)
	if err != nil {
		return domain.CookieSecurityProperties{}, storeError("reload cookie keyset", err)
	}
	if len(winner.Keyset) == 0 {
		return domain.CookieSecurityProperties{}, domain.NewUpstreamError("reload cookie keyset", errors.New("keyset missing after concurrent rotation"))
	}
	return winner, nil
}

// rotateKeyset adds a new primary AES-256-GCM key and keeps only the previous
// primary for decryption. An empty input creates a fresh keyset.
func rotateKeyset(current []byte) ([]byte, error) {
	if len(current) == 0 {
		handle, err := keyset.NewHandle(aead.AES256GCMKeyTemplate())
		if err != nil {
			return nil, fmt.Errorf("create keyset: %w", err)
		}
		return serializeKeyset(handle)
	}

	handle, err := readKeyset(current)
	if err != nil {
		return nil, err
	}
	info := handle.KeysetInfo()
	previousPrimary := info.GetPrimaryKeyId()

	manager := keyset.NewManagerFromHandle(handle)
	newPrimary, err := manager.Add(aead.AES256GCMKeyTemplate())
	if err != nil {
		return nil, fmt.Errorf("add key: %w", err)
	}
	if err := manager.SetPrimary(newPrimary); err != nil {
		return nil, fmt.Errorf("set primary key: %w", err)
	}
	for _, key := range info.GetKeyInfo() {
		if key.GetKeyId() == previousPrimary {
			continue
		}
		if err := manager.Delete(key.GetKeyId()); err != nil {
			return nil, fmt.Errorf("delete key %d: %w", key.GetKeyId(), err)
		}
	}

	rotated, err := manager.Handle()
	if err != nil {
		return nil, fmt.Errorf("build keyset: %w", err)
	}
	return serializeKeyset(rotated)
}

func parseKeyset(props domain.CookieSecurityProperties) (*loadedKeyset, error) {
	handle, err := readKeyset(props.Keyset)
	if err != nil {
		return nil, err
	}
	primitive, err := aead.New(handle)
	if err != nil {
		return nil, fmt.Errorf("build aead: %w", err)
	}
	return &loadedKeyset{props: props, primitive: primitive}, nil
}

func readKeyset(serialized []byte) (*keyset.Handle, error) {
	handle, err := insecurecleartextkeyset.Read(keyset.NewJSONReader(bytes.NewReader(serialized)))
	if err != nil {
		return nil, fmt.Errorf("read keyset: %w", err)
	}
	return handle, nil
}

func serializeKeyset(handle *keyset.Handle) ([]byte, error) {
	var buf bytes.Buffer
	if err := insecurecleartextkeyset.Write(handle, keyset.NewJSONWriter(&buf)); err != nil {
		return nil, fmt.Errorf("write keyset: %w", err)
	}
	return buf.Bytes(), nil
}

func (s *CryptoService) log() *zap.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return zap.L()
}
