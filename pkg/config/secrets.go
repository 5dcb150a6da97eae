package config

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/scrypt"

	"relaybot/pkg/logx"
)

// On disk a secrets file is magic | salt | nonce | sealed JSON object.
// The key is derived from the password with scrypt and seals with AES-256-GCM.
var secretsMagic = []byte("RLYS1")

const (
	secretsSaltLen  = 16
	secretsNonceLen = 12
	secretsKeyLen   = 32
	gcmTagLen       = 16
	secretsFileMode = 0o600

	scryptN = 1 << 15
	scryptR = 8
	scryptP = 1
)

// vault holds the unlocked secrets.
//
//nolint:gochecknoglobals // process-wide
var vault struct {
	sync.RWMutex
	values map[string]string
}

// SetDecryptedSecrets replaces the unlocked secrets. Nil clears them.
func SetDecryptedSecrets(secrets map[string]string) {
	vault.Lock()
	vault.values = secrets
	vault.Unlock()
}

// GetSecret looks name up in the unlocked secrets file, then in the environment.
func GetSecret(name string) (string, error) {
	vault.RLock()
	value := vault.values[name]
	vault.RUnlock()
	if value != "" {
		return value, nil
	}
	if value = os.Getenv(name); value != "" {
		return value, nil
	}
	return "", fmt.Errorf("secret %s is not set", name)
}

// LoadSecrets unlocks path into memory. A missing file leaves the environment as the only source.
func LoadSecrets(path, password string) error {
	secrets, err := DecryptSecretsFile(path, password)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	SetDecryptedSecrets(secrets)
	return nil
}

// SaveSecret sets name in the file at path, creating the file if needed.
func SaveSecret(path, password, name, value string) error {
	secrets, err := DecryptSecretsFile(path, password)
	switch {
	case errors.Is(err, os.ErrNotExist):
		secrets = make(map[string]string, 1)
	case err != nil:
		return err
	}
	secrets[name] = value
	return EncryptSecretsFile(path, password, secrets)
}

// EncryptSecretsFile seals secrets into path, replacing it atomically.
func EncryptSecretsFile(path, password string, secrets map[string]string) error {
	plain, err := json.Marshal(secrets)
	if err != nil {
		return fmt.Errorf("encode secrets: %w", err)
	}
	defer wipe(plain)

	header := make([]byte, secretsSaltLen+secretsNonceLen)
	if _, err := rand.Read(header); err != nil {
		return fmt.Errorf("read random: %w", err)
	}
	salt, nonce := header[:secretsSaltLen], header[secretsSaltLen:]

	aead, err := secretsAEAD(password, salt)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	buf.Write(secretsMagic)
	buf.Write(header)
	buf.Write(aead.Seal(nil, nonce, plain, secretsMagic))

	return writeFileAtomic(path, buf.Bytes())
}

// DecryptSecretsFile opens the file at path. Errors wrap os.ErrNotExist when it is absent.
func DecryptSecretsFile(path, password string) (map[string]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("secrets file: %w", err)
	}
	if perm := info.Mode().Perm(); perm != secretsFileMode {
		logx.Warnf("secrets file %s is mode %04o, tightening to %04o", path, perm, secretsFileMode)
		if err := os.Chmod(path, secretsFileMode); err != nil {
			return nil, fmt.Errorf("secrets file: %w", err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("secrets file: %w", err)
	}
	if len(data) < len(secretsMagic)+secretsSaltLen+secretsNonceLen+gcmTagLen {
		return nil, errors.New("secrets file is too small to be valid")
	}
	if !bytes.HasPrefix(data, secretsMagic) {
		return nil, errors.New("secrets file has an unknown format")
	}
	data = data[len(secretsMagic):]
	salt := data[:secretsSaltLen]
	nonce := data[secretsSaltLen : secretsSaltLen+secretsNonceLen]
	sealed := data[secretsSaltLen+secretsNonceLen:]

	aead, err := secretsAEAD(password, salt)
	if err != nil {
		return nil, err
	}
	plain, err := aead.Open(nil, nonce, sealed, secretsMagic)
	if err != nil {
		return nil, errors.New("secrets decryption failed: wrong password or damaged file")
	}
	defer wipe(plain)

	secrets := make(map[string]string)
	if err := json.Unmarshal(plain, &secrets); err != nil {
		return nil, fmt.Errorf("decode secrets: %w", err)
	}
	return secrets, nil
}

func secretsAEAD(password string, salt []byte) (cipher.AEAD, error) {
	pw := []byte(password)
	defer wipe(pw)

	key, err := scrypt.Key(pw, salt, scryptN, scryptR, scryptP, secretsKeyLen)
	if err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	defer wipe(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("secrets dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".secrets-*")
	if err != nil {
		return fmt.Errorf("secrets temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // gone after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write secrets: %w", err)
	}
	if err := tmp.Chmod(secretsFileMode); err != nil {
		tmp.Close()
		return fmt.Errorf("write secrets: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write secrets: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}

func wipe(b []byte) {
	clear(b)
}
