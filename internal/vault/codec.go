package vault

import "log/slog"

// Codec is the transparent read/write hook the account repository
// applies to sensitive credential columns. It is handed to the
// repository at construction time so there is no package-level state.
//
// Read failures are deliberately non-fatal here: a row with an
// unreadable envelope decodes to an empty value instead of failing the
// whole query. Callers that need a hard failure must go through
// Vault.Decrypt directly.
type Codec struct {
	vault *Vault
}

func NewCodec(v *Vault) *Codec {
	return &Codec{vault: v}
}

// EncryptField seals a plaintext column value. Write failures are
// fatal; a row must never be stored half-encrypted.
func (c *Codec) EncryptField(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	return c.vault.EncryptString(plaintext)
}

// DecryptField opens a stored envelope, yielding "" on any failure.
func (c *Codec) DecryptField(stored string) string {
	if stored == "" {
		return ""
	}

	plaintext, err := c.vault.DecryptString(stored)
	if err != nil {
		slog.Warn("credential field unreadable", "error", err.Error())
		return ""
	}
	return plaintext
}

// KeyID reports the key id used for new writes.
func (c *Codec) KeyID() string {
	return c.vault.ActiveKeyID()
}
