package auth

import (
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/pkg/errors"
)

var (
	ErrTokenMalformed = errors.New("token malformed")
	ErrTokenSignature = errors.New("token signature invalid")
	ErrTokenExpired   = errors.New("token expired")
)

// Identity is the subject carried by a bearer token.
type Identity struct {
	ID       uint   `json:"id"`
	Username string `json:"username"`
}

type Claims struct {
	Identity
	jwt.StandardClaims
}

// Verifier checks bearer tokens. The middleware depends on this rather than
// on TokenIssuer so handlers can be tested with a stub.
type Verifier interface {
	Verify(token string) (Identity, error)
}

type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue signs an HS256 token for id that expires ttl after issuance.
func (t *TokenIssuer) Issue(id Identity) (string, time.Time, error) {
	issuedAt := t.now()
	expiresAt := issuedAt.Add(t.ttl)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Identity: id,
		StandardClaims: jwt.StandardClaims{
			IssuedAt:  issuedAt.Unix(),
			ExpiresAt: expiresAt.Unix(),
		},
	})
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, errors.Wrap(err, "signing token")
	}
	return signed, expiresAt, nil
}

// Verify returns the identity in token or one of ErrTokenMalformed,
// ErrTokenSignature and ErrTokenExpired.
func (t *TokenIssuer) Verify(token string) (Identity, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(tok *jwt.Token) (interface{}, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenSignature
		}
		return t.secret, nil
	})
	if err != nil {
		return Identity{}, classify(err)
	}
	if !parsed.Valid {
		return Identity{}, ErrTokenSignature
	}
	if claims.ExpiresAt == 0 || claims.ExpiresAt < t.now().Unix() {
		return Identity{}, ErrTokenExpired
	}
	return claims.Identity, nil
}

func classify(err error) error {
	var ve *jwt.ValidationError
	if !errors.As(err, &ve) {
		return ErrTokenMalformed
	}
	switch {
	case ve.Errors&jwt.ValidationErrorMalformed != 0:
		return ErrTokenMalformed
	case ve.Errors&(jwt.ValidationErrorSignatureInvalid|jwt.ValidationErrorUnverifiable) != 0:
		return ErrTokenSignature
	case ve.Errors&jwt.ValidationErrorExpired != 0:
		return ErrTokenExpired
	default:
		return ErrTokenMalformed
	}
}
