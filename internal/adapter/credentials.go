package adapter

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
)

// ErrInvalidCredentials is returned when the service account file is unusable.
var ErrInvalidCredentials = errors.New("invalid service account credentials")

// ServiceAccount is the subset of a Google service-account key file the sheets client needs.
type ServiceAccount struct {
	Type         string `json:"type"`
	ProjectID    string `json:"project_id"`
	PrivateKeyID string `json:"private_key_id"`
	PrivateKey   string `json:"private_key"`
	ClientEmail  string `json:"client_email"`
	ClientID     string `json:"client_id"`
	TokenURI     string `json:"token_uri"`

	raw []byte
}

// JSON returns the original key file bytes.
func (s *ServiceAccount) JSON() []byte { return s.raw }

type cachedAccount struct {
	account *ServiceAccount
	err     error
}

// CredentialLoader reads and validates service account files once per path per process.
type CredentialLoader struct {
	mu    sync.Mutex
	cache map[string]cachedAccount
}

// NewCredentialLoader creates an empty loader.
func NewCredentialLoader() *CredentialLoader {
	return &CredentialLoader{cache: make(map[string]cachedAccount)}
}

// Load returns the validated service account stored at path. Failures are cached too,
// so a broken file is reported once instead of on every request.
func (l *CredentialLoader) Load(path string) (*ServiceAccount, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if c, ok := l.cache[path]; ok {
		return c.account, c.err
	}
	account, err := readServiceAccount(path)
	l.cache[path] = cachedAccount{account: account, err: err}
	return account, err
}

// Forget drops the cached result for path.
func (l *CredentialLoader) Forget(path string) {
	l.mu.Lock()
	delete(l.cache, path)
	l.mu.Unlock()
}

func readServiceAccount(path string) (*ServiceAccount, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: credentials path is empty", ErrInvalidCredentials)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}
	return ParseServiceAccount(raw)
}

// ParseServiceAccount decodes and validates key file contents.
func ParseServiceAccount(raw []byte) (*ServiceAccount, error) {
	var sa ServiceAccount
	if err := json.Unmarshal(raw, &sa); err != nil {
		return nil, fmt.Errorf("%w: malformed JSON: %v", ErrInvalidCredentials, err)
	}

	var missing []string
	if sa.Type == "" {
		missing = append(missing, "type")
	}
	if sa.ProjectID == "" {
		missing = append(missing, "project_id")
	}
	if sa.PrivateKey == "" {
		missing = append(missing, "private_key")
	}
	if sa.ClientEmail == "" {
		missing = append(missing, "client_email")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing fields %s", ErrInvalidCredentials, strings.Join(missing, ", "))
	}
	if sa.Type != "service_account" {
		return nil, fmt.Errorf("%w: type must be service_account, got %q", ErrInvalidCredentials, sa.Type)
	}
	if !strings.Contains(sa.PrivateKey, "PRIVATE KEY") {
		return nil, fmt.Errorf("%w: private_key is not a PEM key", ErrInvalidCredentials)
	}

	sa.raw = raw
	return &sa, nil
}
