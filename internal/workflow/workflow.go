// Package workflow sequences key resolution, JWT signing and GitHub API calls
// into the three operations the CLI exposes. All input validation happens
// before any key material is touched or any network call is made.
package workflow

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/alecthomas/errors"

	"github.com/block/ghtoken/internal/appjwt"
	"github.com/block/ghtoken/internal/githubapi"
	"github.com/block/ghtoken/internal/keyfile"
	"github.com/block/ghtoken/internal/logging"
)

// Failure categories. Every error returned by a workflow wraps one of these.
var (
	// ErrInvalidInput marks a malformed or missing argument, always caught
	// before any side effect.
	ErrInvalidInput = errors.New("invalid input")

	// ErrDependency marks a failure in the signer, the transport, or the
	// GitHub API.
	ErrDependency = errors.New("dependency failure")
)

// GitHub is the subset of the API client the workflows need.
type GitHub interface {
	ListInstallations(ctx context.Context, appJWT string) ([]githubapi.Installation, error)
	CreateInstallationToken(ctx context.Context, appJWT string, installationID int64) (githubapi.InstallationToken, error)
	RevokeToken(ctx context.Context, token string) (int, error)
}

// Credentials identifies the app and its key material.
type Credentials struct {
	KeyPath         string
	Base64Key       string
	AppID           string
	DurationMinutes int
}

// RevokeResult reports GitHub's answer to a revocation request.
type RevokeResult struct {
	Revoked bool `json:"revoked"`
	Status  int  `json:"status"`
}

// Workflow holds the collaborators shared by all operations. It keeps no
// state between calls.
type Workflow struct {
	signer appjwt.Signer
	github GitHub
}

func New(signer appjwt.Signer, github GitHub) *Workflow {
	return &Workflow{signer: signer, github: github}
}

// Installations signs an app JWT and lists the app's installations.
func (w *Workflow) Installations(ctx context.Context, creds Credentials) ([]githubapi.Installation, error) {
	if err := validate(creds); err != nil {
		return nil, err
	}

	appJWT, err := w.signJWT(ctx, creds)
	if err != nil {
		return nil, err
	}

	installations, err := w.github.ListInstallations(ctx, appJWT)
	if err != nil {
		return nil, errors.Errorf("%w: %w", ErrDependency, err)
	}
	return installations, nil
}

// Generate mints an installation access token. When installationID is zero
// the first installation found for the app is used.
func (w *Workflow) Generate(ctx context.Context, creds Credentials, installationID int64) (githubapi.InstallationToken, error) {
	if err := validate(creds); err != nil {
		return githubapi.InstallationToken{}, err
	}
	if installationID < 0 {
		return githubapi.InstallationToken{}, errors.Errorf("%w: installation id must be a positive integer", ErrInvalidInput)
	}

	appJWT, err := w.signJWT(ctx, creds)
	if err != nil {
		return githubapi.InstallationToken{}, err
	}

	logger := logging.FromContext(ctx)
	if installationID == 0 {
		installations, err := w.github.ListInstallations(ctx, appJWT)
		if err != nil {
			return githubapi.InstallationToken{}, errors.Errorf("%w: failed to fetch installation id: %w", ErrDependency, err)
		}
		if len(installations) == 0 {
			return githubapi.InstallationToken{}, errors.Errorf("%w: failed to fetch installation id: app has no installations", ErrDependency)
		}
		installationID = installations[0].ID
		logger.DebugContext(ctx, "Discovered installation", slog.Int64("installation_id", installationID))
	}

	token, err := w.github.CreateInstallationToken(ctx, appJWT, installationID)
	if err != nil {
		return githubapi.InstallationToken{}, errors.Errorf("%w: %w", ErrDependency, err)
	}

	logger.DebugContext(ctx, "Created installation token", slog.Any("token", token))
	return token, nil
}

// Revoke revokes an installation access token. GitHub refusing the
// revocation is reported in the result, not as an error: only transport
// failures are fatal.
func (w *Workflow) Revoke(ctx context.Context, token string) (RevokeResult, error) {
	if token == "" {
		return RevokeResult{}, errors.Errorf("%w: token required", ErrInvalidInput)
	}

	status, err := w.github.RevokeToken(ctx, token)
	if err != nil {
		return RevokeResult{}, errors.Errorf("%w: %w", ErrDependency, err)
	}

	return RevokeResult{Revoked: status == http.StatusNoContent, Status: status}, nil
}

// signJWT resolves key material and signs the app JWT. The decoded key file,
// if any, only exists for the duration of this call.
func (w *Workflow) signJWT(ctx context.Context, creds Credentials) (string, error) {
	key, err := keyfile.Resolve(creds.KeyPath, creds.Base64Key)
	if err != nil {
		return "", errors.Errorf("%w: %w", ErrInvalidInput, err)
	}
	defer key.Close()

	claims := appjwt.NewClaims(creds.AppID, creds.DurationMinutes, time.Now())
	appJWT, err := w.signer.Sign(ctx, claims, key.Path())
	if err != nil {
		return "", errors.Errorf("%w: failed to sign JWT: %w", ErrDependency, err)
	}
	return appJWT, nil
}

func validate(creds Credentials) error {
	if err := appjwt.ValidateAppID(creds.AppID); err != nil {
		return errors.Errorf("%w: %w", ErrInvalidInput, err)
	}
	if err := appjwt.ValidateDuration(creds.DurationMinutes); err != nil {
		return errors.Errorf("%w: %w", ErrInvalidInput, err)
	}
	return nil
}
