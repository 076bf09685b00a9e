// Package krypt decrypts the secret values and files referenced with the
// "dekrypt:" prefix. Encryption is age (x25519); an armored file or a
// base64 string are both accepted.
//
// There is no package-level key. Callers build a Context once per run and
// pass it to whatever needs decryption.
package krypt

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"filippo.io/age"
	"filippo.io/age/armor"
	"github.com/zeebo/blake3"
)

// KeyEnvVar holds an age identity and takes precedence over key files.
const KeyEnvVar = "KREATE_AGE_KEY"

// Context carries what decryption needs for one run.
type Context struct {
	// Identity is an AGE-SECRET-KEY-1... string. Empty means no key.
	Identity string
	// Dummy replaces every decrypted value with a stable placeholder so
	// konfigs with secrets can be rendered without the key.
	Dummy bool
}

// NewContext builds a Context from an optional identity file. The
// KREATE_AGE_KEY environment variable, when set, wins over the file.
func NewContext(keyFile string, dummy bool) (*Context, error) {
	ctx := &Context{Dummy: dummy}
	if key := strings.TrimSpace(os.Getenv(KeyEnvVar)); key != "" {
		ctx.Identity = key
		return ctx, nil
	}
	if keyFile == "" || dummy {
		return ctx, nil
	}
	identity, err := LoadIdentity(keyFile)
	if err != nil {
		return nil, err
	}
	ctx.Identity = identity
	return ctx, nil
}

// LoadIdentity reads the first identity line of an age key file,
// skipping comments.
func LoadIdentity(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading age key file: %w", err)
	}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if _, err := age.ParseX25519Identity(line); err != nil {
			return "", fmt.Errorf("parsing age key file %s: %w", path, err)
		}
		return line, nil
	}
	return "", fmt.Errorf("no identity found in %s", path)
}

// Dekrypt decrypts text. In dummy mode it returns a placeholder derived
// from the ciphertext instead.
func (c *Context) Dekrypt(text string) (string, error) {
	if c == nil {
		return "", fmt.Errorf("no krypt context available")
	}
	if c.Dummy {
		return Placeholder(text), nil
	}
	if c.Identity == "" {
		return "", fmt.Errorf("no age identity configured (set %s or --key-file)", KeyEnvVar)
	}

	identity, err := age.ParseX25519Identity(c.Identity)
	if err != nil {
		return "", fmt.Errorf("parsing age identity: %w", err)
	}

	var src io.Reader
	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, armor.Header) {
		src = armor.NewReader(strings.NewReader(trimmed))
	} else {
		raw, err := base64.StdEncoding.DecodeString(trimmed)
		if err != nil {
			return "", fmt.Errorf("decoding base64 ciphertext: %w", err)
		}
		src = bytes.NewReader(raw)
	}

	reader, err := age.Decrypt(src, identity)
	if err != nil {
		return "", fmt.Errorf("decrypting: %w", err)
	}
	plaintext, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("reading decrypted plaintext: %w", err)
	}
	return string(plaintext), nil
}

// Enkrypt encrypts plaintext to the given age recipients and returns
// base64 ciphertext, the form used for inline secret values.
func Enkrypt(plaintext string, recipientKeys ...string) (string, error) {
	if len(recipientKeys) == 0 {
		return "", fmt.Errorf("at least one recipient is required")
	}
	recipients := make([]age.Recipient, 0, len(recipientKeys))
	for _, key := range recipientKeys {
		recipient, err := age.ParseX25519Recipient(key)
		if err != nil {
			return "", fmt.Errorf("parsing recipient key %q: %w", key, err)
		}
		recipients = append(recipients, recipient)
	}

	var buf bytes.Buffer
	writer, err := age.Encrypt(&buf, recipients...)
	if err != nil {
		return "", fmt.Errorf("creating age encryptor: %w", err)
	}
	if _, err := io.WriteString(writer, plaintext); err != nil {
		return "", fmt.Errorf("writing plaintext to age encryptor: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("finalizing age encryption: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// Placeholder is the dummy-mode stand-in for a decrypted value.
func Placeholder(ciphertext string) string {
	sum := blake3.Sum256([]byte(ciphertext))
	return "dummy-" + hex.EncodeToString(sum[:4])
}
