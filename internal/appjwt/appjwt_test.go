package appjwt_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alecthomas/assert/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/block/ghtoken/internal/appjwt"
)

func TestValidateAppID(t *testing.T) {
	tests := []struct {
		appID string
		ok    bool
	}{
		{"12345", true},
		{"0", true},
		{"-5", true}, // matches the integer pattern, GitHub rejects it later
		{"12a", false},
		{"", false},
		{"12 34", false},
	}
	for _, tt := range tests {
		t.Run(tt.appID, func(t *testing.T) {
			err := appjwt.ValidateAppID(tt.appID)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestValidateDuration(t *testing.T) {
	assert.NoError(t, appjwt.ValidateDuration(1))
	assert.NoError(t, appjwt.ValidateDuration(10))
	assert.Error(t, appjwt.ValidateDuration(11))
	assert.Error(t, appjwt.ValidateDuration(0))
	assert.Error(t, appjwt.ValidateDuration(-3))
}

func TestNewClaimsWindow(t *testing.T) {
	now := time.Now()
	for minutes := 1; minutes <= 10; minutes++ {
		claims := appjwt.NewClaims("123", minutes, now)
		assert.Equal(t, "123", claims.AppID)
		// Issue time sits 60s in the past to absorb clock drift.
		assert.Equal(t, time.Duration(minutes*60+60)*time.Second, claims.ExpiresAt.Sub(claims.IssuedAt))
		assert.True(t, !claims.IssuedAt.After(now))
	}
}

func TestNewClaimsWholeSeconds(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 30, 999_000_000, time.UTC)
	claims := appjwt.NewClaims("123", 5, now)
	assert.Zero(t, claims.IssuedAt.Nanosecond())
	assert.Zero(t, claims.ExpiresAt.Nanosecond())
}

func writeKey(t *testing.T, encode func(*rsa.PrivateKey) *pem.Block) (string, *rsa.PrivateKey) {
	t.Helper()
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	assert.NoError(t, err)

	path := filepath.Join(t.TempDir(), "key.pem")
	assert.NoError(t, os.WriteFile(path, pem.EncodeToMemory(encode(privateKey)), 0o600))
	return path, privateKey
}

func TestRS256SignerRoundTrip(t *testing.T) {
	path, privateKey := writeKey(t, func(k *rsa.PrivateKey) *pem.Block {
		return &pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(k)}
	})

	claims := appjwt.NewClaims("12345", 5, time.Now())
	signed, err := appjwt.RS256Signer{}.Sign(context.Background(), claims, path)
	assert.NoError(t, err)

	parsed, err := jwt.ParseWithClaims(signed, &jwt.RegisteredClaims{}, func(token *jwt.Token) (any, error) {
		return &privateKey.PublicKey, nil
	}, jwt.WithValidMethods([]string{"RS256"}))
	assert.NoError(t, err)

	registered := parsed.Claims.(*jwt.RegisteredClaims)
	assert.Equal(t, "12345", registered.Issuer)
	assert.Equal(t, claims.IssuedAt.Unix(), registered.IssuedAt.Unix())
	assert.Equal(t, claims.ExpiresAt.Unix(), registered.ExpiresAt.Unix())
}

func TestRS256SignerPKCS8(t *testing.T) {
	path, _ := writeKey(t, func(k *rsa.PrivateKey) *pem.Block {
		der, err := x509.MarshalPKCS8PrivateKey(k)
		assert.NoError(t, err)
		return &pem.Block{Type: "PRIVATE KEY", Bytes: der}
	})

	signed, err := appjwt.RS256Signer{}.Sign(context.Background(), appjwt.NewClaims("1", 5, time.Now()), path)
	assert.NoError(t, err)
	assert.NotZero(t, signed)
}

func TestRS256SignerBadKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "key.pem")
	assert.NoError(t, os.WriteFile(path, []byte("not a key"), 0o600))

	_, err := appjwt.RS256Signer{}.Sign(context.Background(), appjwt.NewClaims("1", 5, time.Now()), path)
	assert.Error(t, err)
}
