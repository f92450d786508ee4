package cookie

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/go-playground/validator/v10"
	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"

	"github.com/sadam21/gooddata-server-oauth2/internal/domain"
)

// maxDecodedSize bounds the decompressed cookie payload.
const maxDecodedSize = 64 << 10

// OrgResolver resolves hostnames to organizations.
type OrgResolver interface {
	Resolve(ctx context.Context, host string) (*domain.Organization, error)
}

// Serializer turns cookie values into compressed, encrypted, URL-safe strings
// bound to the organization of the request host.
type Serializer struct {
	resolver OrgResolver
	crypto   Crypto
	validate *validator.Validate
	logger   *zap.Logger
}

// NewSerializer constructs a cookie serializer.
func NewSerializer(resolver OrgResolver, crypto Crypto, logger *zap.Logger) *Serializer {
	return &Serializer{
		resolver: resolver,
		crypto:   crypto,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
	}
}

// Encode compresses and encrypts value for the organization owning hostname.
func (s *Serializer) Encode(ctx context.Context, hostname, value string) (string, error) {
	org, err := s.resolver.Resolve(ctx, hostname)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write([]byte(value)); err != nil {
		return "", fmt.Errorf("compress cookie: %w", err)
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("compress cookie: %w", err)
	}

	ciphertext, err := s.crypto.Encrypt(ctx, org.ID, buf.Bytes(), []byte(org.ID))
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(ciphertext), nil
}

// EncodeJSON marshals v and encodes it.
func (s *Serializer) EncodeJSON(ctx context.Context, hostname string, v any) (string, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal cookie: %w", err)
	}
	return s.Encode(ctx, hostname, string(payload))
}

// Decode reverses Encode. Values that cannot be decoded, including plain
// text and tampered or truncated ciphertexts, yield ok == false and no error.
// An error is returned only when the organization or its keyset cannot be
// loaded. Rejected values are logged at debug level.
func (s *Serializer) Decode(ctx context.Context, hostname, encoded string) (string, bool, error) {
	if encoded == "" {
		return "", false, nil
	}
	org, err := s.resolver.Resolve(ctx, hostname)
	if err != nil {
		return "", false, err
	}

	ciphertext, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		s.log().Debug("cookie rejected", zap.String("org_id", org.ID), zap.Error(fmt.Errorf("%w: %v", domain.ErrMalformedCookie, err)))
		return "", false, nil
	}

	compressed, err := s.crypto.Decrypt(ctx, org.ID, ciphertext, []byte(org.ID))
	if err != nil {
		if !errors.Is(err, domain.ErrDecryptionFailed) {
			return "", false, err
		}
		s.log().Debug("cookie rejected", zap.String("org_id", org.ID), zap.Error(err))
		return "", false, nil
	}

	value, err := decompress(compressed)
	if err != nil {
		s.log().Debug("cookie rejected", zap.String("org_id", org.ID), zap.Error(err))
		return "", false, nil
	}
	return value, true, nil
}

// DecodeInto decodes encoded as JSON into v and validates it. A payload that
// does not match the shape of v yields ok == false.
func (s *Serializer) DecodeInto(ctx context.Context, hostname, encoded string, v any) (bool, error) {
	value, ok, err := s.Decode(ctx, hostname, encoded)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal([]byte(value), v); err != nil {
		s.log().Debug("cookie payload is not the expected type", zap.Error(err))
		return false, nil
	}
	if err := s.validate.Struct(v); err != nil {
		s.log().Debug("cookie payload failed validation", zap.Error(err))
		return false, nil
	}
	return true, nil
}

func decompress(compressed []byte) (string, error) {
	zr, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return "", fmt.Errorf("%w: open gzip: %v", domain.ErrMalformedCookie, err)
	}
	defer zr.Close()

	out, err := io.ReadAll(io.LimitReader(zr, maxDecodedSize+1))
	if err != nil {
		return "", fmt.Errorf("%w: read gzip: %v", domain.ErrMalformedCookie, err)
	}
	if len(out) > maxDecodedSize {
		return "", fmt.Errorf("%w: payload too large", domain.ErrMalformedCookie)
	}
	return string(out), nil
}

func (s *Serializer) log() *zap.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return zap.L()
}
