package auth

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrInvalidCredentials signals an unknown identity or a wrong secret.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrWeakSecret signals a secret shorter than 8 characters.
	ErrWeakSecret = errors.New("auth: secret must be at least 8 characters")
	// ErrNoSigners signals a token request without any credential.
	ErrNoSigners = errors.New("auth: at least one signer required")
)

const defaultTokenTTL = 5 * time.Minute

// Keyring holds bcrypt hashes of per-identity secrets and mints witness
// tokens for invocations co-signed by one or more identities.
type Keyring struct {
	mu        sync.RWMutex
	hashes    map[Identity][]byte
	jwtSecret []byte
	ttl       time.Duration
	now       func() time.Time
}

func NewKeyring(jwtSecret string) *Keyring {
	return &Keyring{
		hashes:    make(map[Identity][]byte),
		jwtSecret: []byte(jwtSecret),
		ttl:       defaultTokenTTL,
		now:       time.Now,
	}
}

func (k *Keyring) WithClock(now func() time.Time) *Keyring {
	k.now = now
	return k
}

func (k *Keyring) WithTTL(ttl time.Duration) *Keyring {
	k.ttl = ttl
	return k
}

// Register hashes secret and binds it to id, replacing any previous secret.
func (k *Keyring) Register(id Identity, secret string) error {
	if id == "" {
		return fmt.Errorf("auth: identity required")
	}
	if len(secret) < 8 {
		return ErrWeakSecret
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("auth: hash secret: %w", err)
	}
	k.AddHash(id, hash)
	return nil
}

// AddHash binds a precomputed bcrypt hash to id.
func (k *Keyring) AddHash(id Identity, hash []byte) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.hashes[id] = hash
}

// Issue verifies every credential and returns a token naming them as signers.
func (k *Keyring) Issue(creds ...Credential) (string, error) {
	if len(creds) == 0 {
		return "", ErrNoSigners
	}

	signers := make([]string, 0, len(creds))
	for _, c := range creds {
		k.mu.RLock()
		hash, ok := k.hashes[c.Identity]
		k.mu.RUnlock()
		if !ok {
			return "", ErrInvalidCredentials
		}
		if err := bcrypt.CompareHashAndPassword(hash, []byte(c.Secret)); err != nil {
			return "", ErrInvalidCredentials
		}
		signers = append(signers, string(c.Identity))
	}

	now := k.now()
	claims := jwt.MapClaims{
		"signers": signers,
		"iat":     now.Unix(),
		"exp":     now.Add(k.ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(k.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}

// TokenVerifier turns a witness token into the signer set of one invocation.
type TokenVerifier struct {
	jwtSecret []byte
	now       func() time.Time
}

func NewTokenVerifier(jwtSecret string) *TokenVerifier {
	return &TokenVerifier{jwtSecret: []byte(jwtSecret), now: time.Now}
}

func (v *TokenVerifier) WithClock(now func() time.Time) *TokenVerifier {
	v.now = now
	return v
}

// Verify validates the token signature and expiry and returns its signers.
func (v *TokenVerifier) Verify(tokenString string) (Signers, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.jwtSecret, nil
	}, jwt.WithTimeFunc(v.now), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("auth: parse token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("auth: invalid token")
	}
	raw, ok := claims["signers"].([]interface{})
	if !ok || len(raw) == 0 {
		return nil, fmt.Errorf("auth: invalid signers in token")
	}
	ids := make([]Identity, 0, len(raw))
	for _, r := range raw {
		s, ok := r.(string)
		if !ok || s == "" {
			return nil, fmt.Errorf("auth: invalid signer %v in token", r)
		}
		ids = append(ids, Identity(s))
	}
	return NewSigners(ids...), nil
}
