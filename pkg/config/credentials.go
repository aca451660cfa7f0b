package config

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

const (
	credentialsFile = "credentials.json"
	keyFile         = "credentials.key"
)

// CredentialStore keeps the API key encrypted at rest. The key file and the
// sealed credentials live side by side in the config directory; both are
// machine-local and mode 0600.
type CredentialStore struct {
	dir    string
	logger *slog.Logger
}

type sealedCredentials struct {
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

// NewCredentialStore creates a store rooted at the given directory, creating
// it if needed.
func NewCredentialStore(dir string, logger *slog.Logger) (*CredentialStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create credentials directory: %w", err)
	}
	return &CredentialStore{dir: dir, logger: logger}, nil
}

// SetAPIKey encrypts and stores the API key.
func (s *CredentialStore) SetAPIKey(apiKey string) error {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return fmt.Errorf("api key is empty")
	}

	key, err := s.loadOrCreateKey()
	if err != nil {
		return err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return fmt.Errorf("failed to initialize cipher: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("failed to generate nonce: %w", err)
	}
	ciphertext := aead.Seal(nil, nonce, []byte(apiKey), nil)

	sealed := sealedCredentials{
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(ciphertext),
	}
	data, err := json.MarshalIndent(sealed, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}
	if err := os.WriteFile(s.credentialsPath(), data, 0600); err != nil {
		return fmt.Errorf("failed to write credentials: %w", err)
	}

	s.logger.Info("api key stored", "path", s.credentialsPath())
	return nil
}

// APIKey decrypts and returns the stored API key. Returns an empty string
// with no error when no key has been stored.
func (s *CredentialStore) APIKey() (string, error) {
	data, err := os.ReadFile(s.credentialsPath())
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read credentials: %w", err)
	}

	var sealed sealedCredentials
	if err := json.Unmarshal(data, &sealed); err != nil {
		return "", fmt.Errorf("failed to parse credentials: %w", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(sealed.Nonce)
	if err != nil {
		return "", fmt.Errorf("failed to decode nonce: %w", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(sealed.Ciphertext)
	if err != nil {
		return "", fmt.Errorf("failed to decode ciphertext: %w", err)
	}

	key, err := s.loadKey()
	if err != nil {
		return "", err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return "", fmt.Errorf("failed to initialize cipher: %w", err)
	}
	if len(nonce) != aead.NonceSize() {
		return "", fmt.Errorf("credentials nonce has wrong size: %d", len(nonce))
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt credentials: %w", err)
	}
	return string(plaintext), nil
}

// Clear removes the stored API key and its encryption key.
func (s *CredentialStore) Clear() error {
	for _, path := range []string{s.credentialsPath(), s.keyPath()} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove %s: %w", filepath.Base(path), err)
		}
	}
	s.logger.Info("api key cleared")
	return nil
}

// HasAPIKey reports whether a key is stored without decrypting it.
func (s *CredentialStore) HasAPIKey() bool {
	_, err := os.Stat(s.credentialsPath())
	return err == nil
}

func (s *CredentialStore) credentialsPath() string {
	return filepath.Join(s.dir, credentialsFile)
}

func (s *CredentialStore) keyPath() string {
	return filepath.Join(s.dir, keyFile)
}

func (s *CredentialStore) loadOrCreateKey() ([]byte, error) {
	key, err := s.loadKey()
	if err == nil {
		return key, nil
	}
	if !os.IsNotExist(err) {
		return nil, err
	}

	key = make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate encryption key: %w", err)
	}
	encoded := base64.StdEncoding.EncodeToString(key)
	if err := os.WriteFile(s.keyPath(), []byte(encoded), 0600); err != nil {
		return nil, fmt.Errorf("failed to write encryption key: %w", err)
	}
	s.logger.Debug("encryption key created", "path", s.keyPath())
	return key, nil
}

func (s *CredentialStore) loadKey() ([]byte, error) {
	data, err := os.ReadFile(s.keyPath())
	if err != nil {
		return nil, err
	}
	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to decode encryption key: %w", err)
	}
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("encryption key has wrong size: %d", len(key))
	}
	return key, nil
}
