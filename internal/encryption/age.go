package encryption

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"filippo.io/age"

	"qslm/internal/config"
)

// AgeEncryptor encrypts archive snapshots with an X25519 key pair. The
// public key sits on disk in plaintext so encryption never needs the
// passphrase; the private key is wrapped with age's scrypt recipient and
// only comes out through Unlock.
type AgeEncryptor struct {
	publicKeyPath  string
	privateKeyPath string
}

func NewAgeEncryptor(cfg config.EncryptionConfig) *AgeEncryptor {
	return &AgeEncryptor{
		publicKeyPath:  cfg.PublicKeyPath,
		privateKeyPath: cfg.PrivateKeyPath,
	}
}

// Setup generates a fresh key pair and writes both halves. The private
// key file is created 0600 and holds the identity as an age ciphertext
// under the passphrase.
func (e *AgeEncryptor) Setup(passphrase string) error {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return fmt.Errorf("generating key pair: %w", err)
	}

	for _, p := range []string{e.publicKeyPath, e.privateKeyPath} {
		if err := os.MkdirAll(filepath.Dir(p), 0700); err != nil {
			return fmt.Errorf("creating key directory: %w", err)
		}
	}

	if err := os.WriteFile(e.publicKeyPath, []byte(identity.Recipient().String()+"\n"), 0644); err != nil {
		return fmt.Errorf("writing public key: %w", err)
	}
	if err := e.writePrivateKey(identity, passphrase); err != nil {
		return fmt.Errorf("writing private key: %w", err)
	}
	return nil
}

func (e *AgeEncryptor) writePrivateKey(identity *age.X25519Identity, passphrase string) error {
	f, err := os.OpenFile(e.privateKeyPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	recipient, err := age.NewScryptRecipient(passphrase)
	if err != nil {
		return err
	}
	w, err := age.Encrypt(f, recipient)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(w, identity.String()+"\n"); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return f.Close()
}

// Encrypt streams plaintext from r to w as age ciphertext for the stored
// public key.
func (e *AgeEncryptor) Encrypt(r io.Reader, w io.Writer) error {
	pubData, err := os.ReadFile(e.publicKeyPath)
	if err != nil {
		return fmt.Errorf("reading public key: %w", err)
	}
	recipients, err := age.ParseRecipients(bytes.NewReader(pubData))
	if err != nil {
		return fmt.Errorf("parsing public key: %w", err)
	}
	if len(recipients) == 0 {
		return fmt.Errorf("public key file %s holds no recipients", e.publicKeyPath)
	}

	cw, err := age.Encrypt(w, recipients[0])
	if err != nil {
		return fmt.Errorf("starting encryption: %w", err)
	}
	if _, err := io.Copy(cw, r); err != nil {
		return fmt.Errorf("encrypting data: %w", err)
	}
	if err := cw.Close(); err != nil {
		return fmt.Errorf("finalizing ciphertext: %w", err)
	}
	return nil
}

// Unlock decrypts the private key with the passphrase. A wrong
// passphrase fails here, before any archive is touched.
func (e *AgeEncryptor) Unlock(passphrase string) (*Decryptor, error) {
	wrapped, err := os.ReadFile(e.privateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("reading private key: %w", err)
	}

	scrypt, err := age.NewScryptIdentity(passphrase)
	if err != nil {
		return nil, fmt.Errorf("deriving key from passphrase: %w", err)
	}
	r, err := age.Decrypt(bytes.NewReader(wrapped), scrypt)
	if err != nil {
		return nil, fmt.Errorf("unlocking private key: %w", err)
	}
	keyData, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading unlocked private key: %w", err)
	}

	identities, err := age.ParseIdentities(bytes.NewReader(keyData))
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}
	if len(identities) == 0 {
		return nil, fmt.Errorf("private key file holds no identities")
	}
	return &Decryptor{identity: identities[0]}, nil
}

// IsConfigured reports whether both key files exist.
func (e *AgeEncryptor) IsConfigured() bool {
	for _, p := range []string{e.publicKeyPath, e.privateKeyPath} {
		if _, err := os.Stat(p); err != nil {
			return false
		}
	}
	return true
}

// Decryptor holds an unlocked identity for reading archives back.
type Decryptor struct {
	identity age.Identity
}

// Decrypt streams age ciphertext from r to w as plaintext.
func (d *Decryptor) Decrypt(r io.Reader, w io.Writer) error {
	pr, err := age.Decrypt(r, d.identity)
	if err != nil {
		return fmt.Errorf("starting decryption: %w", err)
	}
	if _, err := io.Copy(w, pr); err != nil {
		return fmt.Errorf("decrypting data: %w", err)
	}
	return nil
}
