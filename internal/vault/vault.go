package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

var (
	ErrUnknownKey      = errors.New("vault: unknown key id")
	ErrInvalidEnvelope = errors.New("vault: invalid sealed envelope")
)

// Sealed is the versioned at-rest format for encrypted columns. Keeping
// the key id inside the envelope lets ciphertexts from older keys stay
// decryptable after a rotation.
type Sealed struct {
	Ciphertext string `json:"ciphertext"`
	Nonce      string `json:"nonce"`
	Tag        string `json:"tag"`
	KeyID      string `json:"key_id"`
}

// Vault encrypts and decrypts OAuth secrets with AES-256-GCM. Encrypt
// always uses the active key; Decrypt accepts any key on the ring.
type Vault struct {
	keys     map[string][]byte
	activeID string
}

func New(secret, keyID string) *Vault {
	v := &Vault{
		keys:     make(map[string][]byte),
		activeID: keyID,
	}
	v.AddKey(keyID, secret)
	return v
}

// AddKey registers an additional decryption key under the given id.
func (v *Vault) AddKey(keyID, secret string) {
	key := sha256.Sum256([]byte(secret))
	v.keys[keyID] = key[:]
}

func (v *Vault) Encrypt(plaintext []byte) (*Sealed, error) {
	aesGCM, err := v.gcm(v.activeID)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, aesGCM.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	sealed := aesGCM.Seal(nil, nonce, plaintext, nil)

	// Seal appends the auth tag to the ciphertext; store them apart so
	// the envelope names every part explicitly.
	split := len(sealed) - aesGCM.Overhead()
	ciphertext, tag := sealed[:split], sealed[split:]

	return &Sealed{
		Ciphertext: base64.StdEncoding.EncodeToString(ciphertext),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Tag:        base64.StdEncoding.EncodeToString(tag),
		KeyID:      v.activeID,
	}, nil
}

func (v *Vault) Decrypt(s *Sealed) ([]byte, error) {
	if s == nil {
		return nil, ErrInvalidEnvelope
	}

	aesGCM, err := v.gcm(s.KeyID)
	if err != nil {
		return nil, err
	}

	ciphertext, err := base64.StdEncoding.DecodeString(s.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	nonce, err := base64.StdEncoding.DecodeString(s.Nonce)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	tag, err := base64.StdEncoding.DecodeString(s.Tag)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	if len(nonce) != aesGCM.NonceSize() {
		return nil, ErrInvalidEnvelope
	}

	plaintext, err := aesGCM.Open(nil, nonce, append(ciphertext, tag...), nil)
	if err != nil {
		return nil, fmt.Errorf("vault: decrypt failed: %w", err)
	}

	return plaintext, nil
}

// EncryptString seals a plaintext string into a JSON envelope suitable
// for a text column.
func (v *Vault) EncryptString(plaintext string) (string, error) {
	sealed, err := v.Encrypt([]byte(plaintext))
	if err != nil {
		return "", err
	}

	envelope, err := json.Marshal(sealed)
	if err != nil {
		return "", err
	}
	return string(envelope), nil
}

// DecryptString opens a JSON envelope produced by EncryptString.
func (v *Vault) DecryptString(envelope string) (string, error) {
	var sealed Sealed
	if err := json.Unmarshal([]byte(envelope), &sealed); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}

	plaintext, err := v.Decrypt(&sealed)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// ActiveKeyID is the id stamped on newly sealed envelopes.
func (v *Vault) ActiveKeyID() string {
	return v.activeID
}

func (v *Vault) gcm(keyID string) (cipher.AEAD, error) {
	key, ok := v.keys[keyID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKey, keyID)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
