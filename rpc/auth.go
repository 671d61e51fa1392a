package rpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	jwt "github.com/golang-jwt/jwt/v5"

	"splitescrow/observability/logging"
)

// CallerHeader names the header trusted for the caller identity when token
// authentication is disabled and the header is explicitly allowed.
const CallerHeader = "X-Caller"

const defaultClockSkew = 2 * time.Minute

var errCallerRequired = errors.New("authenticated caller required")

type contextKey string

const contextKeyCaller contextKey = "escrow.caller"

// AuthConfig controls how the server derives the calling account.
type AuthConfig struct {
	Enabled           bool
	Secret            string
	Issuer            string
	AllowCallerHeader bool
	ClockSkew         time.Duration
}

// Authenticator resolves the caller of a request from an HS256 bearer token
// whose subject is the caller's hex address.
type Authenticator struct {
	cfg    AuthConfig
	secret []byte
	logger *slog.Logger
}

func NewAuthenticator(cfg AuthConfig, logger *slog.Logger) (*Authenticator, error) {
	if logger == nil {
		logger = slog.Default()
	}
	secret := []byte(strings.TrimSpace(cfg.Secret))
	if cfg.Enabled && len(secret) == 0 {
		return nil, errors.New("auth secret not configured")
	}
	if cfg.ClockSkew <= 0 {
		cfg.ClockSkew = defaultClockSkew
	}
	return &Authenticator{cfg: cfg, secret: secret, logger: logger}, nil
}

// Middleware attaches the caller, if any, to the request context. Requests
// without credentials pass through; handlers that mutate state require a
// caller via callerFrom.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, err := a.resolve(r)
		if err != nil {
			a.logger.Warn("auth: rejected credentials",
				slog.String("path", r.URL.Path),
				slog.String("authorization", logging.MaskCredential(r.Header.Get("Authorization"))),
				slog.String("error", err.Error()))
			writeError(w, http.StatusUnauthorized, nil, codeUnauthorized, "invalid token", nil)
			return
		}
		if caller != (common.Address{}) {
			r = r.WithContext(context.WithValue(r.Context(), contextKeyCaller, caller))
		}
		next.ServeHTTP(w, r)
	})
}

func (a *Authenticator) resolve(r *http.Request) (common.Address, error) {
	if !a.cfg.Enabled {
		if !a.cfg.AllowCallerHeader {
			return common.Address{}, nil
		}
		raw := strings.TrimSpace(r.Header.Get(CallerHeader))
		if raw == "" {
			return common.Address{}, nil
		}
		return parseAddress("caller", raw)
	}
	tokenString := extractBearer(r.Header.Get("Authorization"))
	if tokenString == "" {
		return common.Address{}, nil
	}
	claims, err := a.parseToken(tokenString)
	if err != nil {
		return common.Address{}, err
	}
	subject, err := claims.GetSubject()
	if err != nil {
		return common.Address{}, err
	}
	return parseAddress("subject", subject)
}

func (a *Authenticator) parseToken(tokenString string) (jwt.MapClaims, error) {
	opts := []jwt.ParserOption{jwt.WithLeeway(a.cfg.ClockSkew), jwt.WithExpirationRequired()}
	if a.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.cfg.Issuer))
	}
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("token invalid")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("claims not map")
	}
	return claims, nil
}

func extractBearer(header string) string {
	header = strings.TrimSpace(header)
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}

func callerFrom(ctx context.Context) (common.Address, error) {
	caller, ok := ctx.Value(contextKeyCaller).(common.Address)
	if !ok || caller == (common.Address{}) {
		return common.Address{}, errCallerRequired
	}
	return caller, nil
}

// IssueToken signs an HS256 token naming subject as the caller.
func IssueToken(secret, issuer string, subject common.Address, ttl time.Duration) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", errors.New("secret required")
	}
	if ttl <= 0 {
		return "", fmt.Errorf("ttl must be positive")
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   subject.Hex(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	if issuer != "" {
		claims.Issuer = issuer
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(strings.TrimSpace(secret)))
}
