// Package vault encrypts provider API keys at rest. Keys are derived from a
// passphrase with PBKDF2-SHA256 and the payload is sealed with AES-256-GCM,
// so a stored record is opaque ciphertext plus its nonce and nothing else.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// appSalt is fixed per application, not per record. The per-record
	// randomness lives in the GCM nonce.
	appSalt = "omnichat-v1"

	keyIterations = 4096
	keyLen        = 32
)

// ErrDecryptionFailed covers wrong passphrases and corrupted records alike.
// GCM authentication makes the two indistinguishable, which is fine: neither
// may yield partial plaintext.
var ErrDecryptionFailed = errors.New("vault: decryption failed")

// Record is an encrypted credential as persisted. Both fields are base64.
type Record struct {
	IV         string `json:"iv"`
	Ciphertext string `json:"ciphertext"`
}

func deriveKey(passphrase string) []byte {
	return pbkdf2.Key([]byte(passphrase), []byte(appSalt), keyIterations, keyLen, sha256.New)
}

func newGCM(passphrase string) (cipher.AEAD, error) {
	block, err := aes.NewCipher(deriveKey(passphrase))
	if err != nil {
		return nil, errors.Wrap(err, "vault: new cipher")
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.Wrap(err, "vault: new gcm")
	}
	return gcm, nil
}

// Encrypt seals plaintext under the passphrase-derived key with a freshly
// generated nonce. The returned record is safe to persist anywhere.
func Encrypt(plaintext, passphrase string) (Record, error) {
	gcm, err := newGCM(passphrase)
	if err != nil {
		return Record{}, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return Record{}, errors.Wrap(err, "vault: nonce")
	}
	sealed := gcm.Seal(nil, nonce, []byte(plaintext), nil)
	return Record{
		IV:         base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(sealed),
	}, nil
}

// Decrypt opens a record with the passphrase-derived key. Any mismatch, in
// key material or in the record itself, fails with ErrDecryptionFailed.
func Decrypt(rec Record, passphrase string) (string, error) {
	nonce, err := base64.StdEncoding.DecodeString(rec.IV)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	data, err := base64.StdEncoding.DecodeString(rec.Ciphertext)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	gcm, err := newGCM(passphrase)
	if err != nil {
		return "", err
	}
	if len(nonce) != gcm.NonceSize() {
		return "", ErrDecryptionFailed
	}
	plain, err := gcm.Open(nil, nonce, data, nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(plain), nil
}

// DerivePassphrase builds a reproducible passphrase from ambient signals:
// the machine's hostname, the current calendar day and the application salt.
// This is deliberately not a secret. It keeps casual inspection of the store
// from reading keys in plaintext; it does not resist anything that can run
// code on the same machine. Callers wanting real protection should supply
// their own passphrase instead (OMNICHAT_PASSPHRASE).
func DerivePassphrase() string {
	return DerivePassphraseAt(time.Now())
}

// DerivePassphraseAt pins the day component of the derivation. Credential
// records store the day they were written so they keep decrypting after
// midnight with the passphrase they were encrypted under.
func DerivePassphraseAt(day time.Time) string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "localhost"
	}
	return strings.Join([]string{host, day.Format("Mon Jan 02 2006"), appSalt}, "-")
}
