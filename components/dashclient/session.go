package dashclient

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// Session owns the authentication token. It is the only component allowed
// to mutate it; everything else reads the token through the gateway
// adapter. Logout is a hard reset: the OnLogout hook lets the view-model
// drop its state in the same step.
type Session struct {
	mu       sync.RWMutex
	token    string
	keeper   TokenKeeper
	onLogout []func()
}

// NewSession builds a session backed by the given keeper. A nil keeper
// keeps the token in memory only.
func NewSession(keeper TokenKeeper) *Session {
	if keeper == nil {
		keeper = memoryTokenKeeper{}
	}
	return &Session{keeper: keeper}
}

// Restore reads any persisted token. Call it before first render so an
// authenticated reload never flashes the login screen.
func (s *Session) Restore() error {
	token, err := s.keeper.Load()
	if err != nil {
		return fmt.Errorf("dashclient: restore session: %w", err)
	}
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
	return nil
}

// Login stores the token and persists it for reload survival.
func (s *Session) Login(token string) error {
	if token == "" {
		return ErrNotAuthenticated
	}
	if err := s.keeper.Store(token); err != nil {
		return fmt.Errorf("dashclient: persist token: %w", err)
	}
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
	return nil
}

// Logout clears the token and runs the registered logout hooks. Hooks fire
// even if clearing the persisted copy fails; a stale file must not keep a
// user logged in.
func (s *Session) Logout() error {
	s.mu.Lock()
	s.token = ""
	hooks := append([]func(){}, s.onLogout...)
	s.mu.Unlock()

	err := s.keeper.Clear()
	for _, hook := range hooks {
		hook()
	}
	if err != nil {
		return fmt.Errorf("dashclient: clear persisted token: %w", err)
	}
	return nil
}

// OnLogout registers a hook invoked on every logout, including forced
// logouts triggered by an authorization failure.
func (s *Session) OnLogout(hook func()) {
	if hook == nil {
		return
	}
	s.mu.Lock()
	s.onLogout = append(s.onLogout, hook)
	s.mu.Unlock()
}

// Token returns the current token, empty when unauthenticated.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Authenticated reports whether a token is present. A token is treated as
// valid until a protected request fails with an authorization error.
func (s *Session) Authenticated() bool {
	return s.Token() != ""
}

type memoryTokenKeeper struct{}

func (memoryTokenKeeper) Load() (string, error) { return "", nil }
func (memoryTokenKeeper) Store(string) error    { return nil }
func (memoryTokenKeeper) Clear() error          { return nil }

// FileTokenKeeper persists the token as a small YAML document, the same
// role localStorage plays in the web client.
type FileTokenKeeper struct {
	Path string
}

type tokenFile struct {
	Token string `yaml:"token"`
}

// NewFileTokenKeeper stores the token at path.
func NewFileTokenKeeper(path string) *FileTokenKeeper {
	return &FileTokenKeeper{Path: path}
}

// Load reads the persisted token. A missing file is not an error; it just
// means no session survived.
func (k *FileTokenKeeper) Load() (string, error) {
	data, err := os.ReadFile(k.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	var doc tokenFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return "", fmt.Errorf("decode token file %s: %w", k.Path, err)
	}
	return doc.Token, nil
}

// Store writes the token with owner-only permissions.
func (k *FileTokenKeeper) Store(token string) error {
	if err := os.MkdirAll(filepath.Dir(k.Path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(tokenFile{Token: token})
	if err != nil {
		return err
	}
	return os.WriteFile(k.Path, data, 0o600)
}

// Clear removes the persisted token.
func (k *FileTokenKeeper) Clear() error {
	if err := os.Remove(k.Path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
