package cookie

import (
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Cookie names shared with the rest of the platform.
const (
	SessionCookieName              = "SPRING_SEC_SECURITY_CONTEXT"
	AuthorizationRequestCookieName = "SPRING_SEC_OAUTH2_AUTHZ_RQ"
)

// Service creates, invalidates and reads encrypted cookies.
type Service struct {
	serializer *Serializer
	duration   time.Duration
	sameSite   http.SameSite
	logger     *zap.Logger
}

// NewService constructs a cookie service.
func NewService(serializer *Serializer, duration time.Duration, sameSite http.SameSite, logger *zap.Logger) *Service {
	if sameSite == 0 {
		sameSite = http.SameSiteLaxMode
	}
	return &Service{serializer: serializer, duration: duration, sameSite: sameSite, logger: logger}
}

// CreateCookie encrypts value for the request host and sets it on w.
func (s *Service) CreateCookie(w http.ResponseWriter, r *http.Request, name, value string) error {
	encoded, err := s.serializer.Encode(r.Context(), r.Host, value)
	if err != nil {
		return err
	}
	http.SetCookie(w, s.cookie(r, name, encoded, int(s.duration.Seconds())))
	return nil
}

// CreateJSONCookie marshals v and sets it as an encrypted cookie.
func (s *Service) CreateJSONCookie(w http.ResponseWriter, r *http.Request, name string, v any) error {
	encoded, err := s.serializer.EncodeJSON(r.Context(), r.Host, v)
	if err != nil {
		return err
	}
	http.SetCookie(w, s.cookie(r, name, encoded, int(s.duration.Seconds())))
	return nil
}

// InvalidateCookie instructs the browser to drop the cookie.
func (s *Service) InvalidateCookie(w http.ResponseWriter, r *http.Request, name string) {
	http.SetCookie(w, s.cookie(r, name, "", -1))
}

// DecodeCookie returns the decrypted cookie value, or ok == false when the
// cookie is missing or cannot be decoded.
func (s *Service) DecodeCookie(r *http.Request, name string) (string, bool, error) {
	c, err := r.Cookie(name)
	if err != nil {
		return "", false, nil
	}
	return s.serializer.Decode(r.Context(), r.Host, c.Value)
}

// DecodeJSONCookie decodes the cookie into v.
func (s *Service) DecodeJSONCookie(r *http.Request, name string, v any) (bool, error) {
	c, err := r.Cookie(name)
	if err != nil {
		return false, nil
	}
	ok, err := s.serializer.DecodeInto(r.Context(), r.Host, c.Value, v)
	if err == nil && !ok {
		s.log().Debug("discarding undecodable cookie", zap.String("cookie", name))
	}
	return ok, err
}

func (s *Service) cookie(r *http.Request, name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   isSecure(r),
		SameSite: s.sameSite,
	}
}

func isSecure(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	return strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}

func (s *Service) log() *zap.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return zap.L()
}
