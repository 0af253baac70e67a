// Package appjwt builds and signs the JWT used to authenticate as a GitHub App.
package appjwt

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"regexp"
	"time"

	"github.com/alecthomas/errors"
	"github.com/golang-jwt/jwt/v5"
)

// MaxDurationMinutes is GitHub's cap on app JWT lifetimes.
const MaxDurationMinutes = 10

// clockSkew is subtracted from the issue time to tolerate drift between this
// machine and GitHub's servers.
const clockSkew = 60 * time.Second

var integerPattern = regexp.MustCompile(`^-?[0-9]+$`)

// Claims is the claim set GitHub expects in an app JWT.
type Claims struct {
	AppID     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// ValidateAppID checks that the app id looks like a GitHub App's numeric id.
func ValidateAppID(appID string) error {
	if !integerPattern.MatchString(appID) {
		return errors.Errorf("app id must be an integer, got %q", appID)
	}
	return nil
}

// ValidateDuration checks the requested JWT lifetime in minutes.
func ValidateDuration(minutes int) error {
	if minutes <= 0 {
		return errors.New("duration must be at least 1 minute")
	}
	if minutes > MaxDurationMinutes {
		return errors.New("duration cannot be more than 10 minutes")
	}
	return nil
}

// NewClaims builds the claim set for a JWT issued at now and expiring after
// the given number of minutes. GitHub rejects fractional timestamps, so now
// is truncated to whole seconds.
func NewClaims(appID string, minutes int, now time.Time) Claims {
	now = now.Truncate(time.Second)
	return Claims{
		AppID:     appID,
		IssuedAt:  now.Add(-clockSkew),
		ExpiresAt: now.Add(time.Duration(minutes) * time.Minute),
	}
}

// Signer signs app claims into a compact JWT using the private key at keyPath.
// It is an interface so workflows can run against a stub in tests.
type Signer interface {
	Sign(ctx context.Context, claims Claims, keyPath string) (string, error)
}

// RS256Signer signs claims with an RSA private key, the only algorithm GitHub
// accepts for app JWTs.
type RS256Signer struct{}

var _ Signer = RS256Signer{}

func (RS256Signer) Sign(_ context.Context, claims Claims, keyPath string) (string, error) {
	privateKey, err := loadPrivateKey(keyPath)
	if err != nil {
		return "", errors.Wrap(err, "load private key")
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.RegisteredClaims{
		Issuer:    claims.AppID,
		IssuedAt:  jwt.NewNumericDate(claims.IssuedAt),
		ExpiresAt: jwt.NewNumericDate(claims.ExpiresAt),
	})
	signedToken, err := token.SignedString(privateKey)
	if err != nil {
		return "", errors.Wrap(err, "sign JWT")
	}

	return signedToken, nil
}

func loadPrivateKey(path string) (*rsa.PrivateKey, error) {
	keyData, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read private key file: %s", path)
	}

	block, _ := pem.Decode(keyData)
	if block == nil {
		return nil, errors.Errorf("failed to decode PEM block from private key file: %s", path)
	}

	privateKey, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err == nil {
		return privateKey, nil
	}

	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, errors.Wrap(err, "parse private key (tried both PKCS1 and PKCS8)")
	}

	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.Errorf("private key is not RSA (type: %T)", key)
	}

	return rsaKey, nil
}
