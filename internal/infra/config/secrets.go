package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/argon2"
)

const encPrefix = "enc:"

// decryptSecrets finds "enc:..." values and decrypts them in place.
func decryptSecrets(cfg *Config, passphrase string) error {
	fields := map[string]*string{
		"llm.huggingface.api_key": &cfg.LLM.HuggingFace.APIKey,
		"pubsub.key":              &cfg.PubSub.Key,
	}
	for name, fp := range fields {
		if err := decryptField(fp, passphrase); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	for i := range cfg.Server.Monitor.Tokens {
		if err := decryptField(&cfg.Server.Monitor.Tokens[i], passphrase); err != nil {
			return fmt.Errorf("server.monitor.tokens[%d]: %w", i, err)
		}
	}
	for i := range cfg.MCP.Servers {
		for k, v := range cfg.MCP.Servers[i].Env {
			if !strings.HasPrefix(v, encPrefix) {
				continue
			}
			plain, err := DecryptValue(strings.TrimPrefix(v, encPrefix), passphrase)
			if err != nil {
				return fmt.Errorf("mcp.servers[%d].env.%s: %w", i, k, err)
			}
			cfg.MCP.Servers[i].Env[k] = plain
		}
	}
	return nil
}

func decryptField(fp *string, passphrase string) error {
	if !strings.HasPrefix(*fp, encPrefix) {
		return nil
	}
	plain, err := DecryptValue(strings.TrimPrefix(*fp, encPrefix), passphrase)
	if err != nil {
		return err
	}
	*fp = plain
	return nil
}

// EncryptValue encrypts plaintext with AES-256-GCM under a passphrase-derived
// key. The result is hex(salt):hex(nonce+ciphertext), without the enc: prefix.
func EncryptValue(plaintext, passphrase string) (string, error) {
	salt := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return hex.EncodeToString(salt) + ":" + hex.EncodeToString(sealed), nil
}

// DecryptValue reverses EncryptValue.
func DecryptValue(encrypted, passphrase string) (string, error) {
	saltHex, dataHex, ok := strings.Cut(encrypted, ":")
	if !ok {
		return "", errors.New("invalid encrypted format")
	}

	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return "", fmt.Errorf("decode salt: %w", err)
	}
	data, err := hex.DecodeString(dataHex)
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return "", err
	}
	if len(data) < gcm.NonceSize() {
		return "", errors.New("ciphertext too short")
	}

	nonce, ciphertext := data[:gcm.NonceSize()], data[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}
	return string(plaintext), nil
}

func newGCM(passphrase string, salt []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(deriveKey(passphrase, salt))
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return gcm, nil
}

// deriveKey uses Argon2id to derive a 32-byte key from passphrase + salt.
func deriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, 1, 64*1024, 4, 32)
}
