// Package keyfile resolves user-supplied key material into a readable
// PEM file on disk.
//
// Key material arrives either as a path to an existing PEM file, or as a
// base64-encoded PEM blob. A blob is decoded into a temporary file whose
// lifetime is scoped to the resolved [Key]: callers must Close it so the
// decoded secret never outlives the operation that needed it.
package keyfile

import (
	"encoding/base64"
	"encoding/pem"
	"os"

	"github.com/alecthomas/errors"
)

// Key is a handle to a PEM private key file.
type Key struct {
	path string
	temp bool
}

// Resolve turns exactly one of (path, base64Key) into a usable key file.
func Resolve(path, base64Key string) (*Key, error) {
	switch {
	case path == "" && base64Key == "":
		return nil, errors.New("key or base64-key required")
	case path != "" && base64Key != "":
		return nil, errors.New("key and base64-key are mutually exclusive")
	case path != "":
		return fromPath(path)
	default:
		return fromBase64(base64Key)
	}
}

func fromPath(path string) (*Key, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "key file %s is not readable", path)
	}
	_ = f.Close()
	return &Key{path: path}, nil
}

func fromBase64(base64Key string) (*Key, error) {
	data, err := base64.StdEncoding.DecodeString(base64Key)
	if err != nil {
		return nil, errors.Wrap(err, "base64-key is not valid base64")
	}

	if block, _ := pem.Decode(data); block == nil {
		return nil, errors.New("base64-key does not decode to a PEM private key")
	}

	f, err := os.CreateTemp("", "ghtoken-*.pem")
	if err != nil {
		return nil, errors.Wrap(err, "failed to create temporary key file")
	}

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return nil, errors.Wrap(err, "failed to write temporary key file")
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return nil, errors.Wrap(err, "failed to write temporary key file")
	}

	return &Key{path: f.Name(), temp: true}, nil
}

// Path returns the location of the PEM file.
func (k *Key) Path() string { return k.path }

// Close removes the decoded key file if one was created. Keys resolved from
// a caller-supplied path are left untouched.
func (k *Key) Close() error {
	if !k.temp {
		return nil
	}
	return errors.Wrap(os.Remove(k.path), "failed to remove temporary key file")
}
