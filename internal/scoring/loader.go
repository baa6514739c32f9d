package scoring

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/felixgeelhaar/carevisit/internal/adjustment/domain"
	"github.com/felixgeelhaar/carevisit/internal/shared/infrastructure/security"
	"github.com/hashicorp/go-plugin"
)

// ErrPluginLoad wraps every failure to start or handshake with a plugin.
var ErrPluginLoad = errors.New("scoring plugin load failed")

// LoadError names the binary that could not be loaded.
type LoadError struct {
	Path   string
	Reason string
	Err    error
}

func (e *LoadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("scoring plugin %s: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("scoring plugin %s: %s", e.Path, e.Reason)
}

func (e *LoadError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrPluginLoad}
	}
	return []error{ErrPluginLoad, e.Err}
}

// LoadOptions describes one plugin binary.
type LoadOptions struct {
	// Path is the absolute path of the plugin binary.
	Path string
	// Checksum is an optional "sha256:HEX" or bare hex digest of the binary.
	Checksum string
}

// Loader starts scoring plugins and keeps their processes until unloaded.
type Loader struct {
	logger *slog.Logger

	mu      sync.Mutex
	clients map[string]*plugin.Client
}

// NewLoader creates a plugin loader.
func NewLoader(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		logger:  logger,
		clients: make(map[string]*plugin.Client),
	}
}

// Load starts the binary and dispenses its factor.
func (l *Loader) Load(opts LoadOptions) (Factor, error) {
	path, err := validateBinaryPath(opts.Path)
	if err != nil {
		return nil, &LoadError{Path: opts.Path, Reason: "binary path validation failed", Err: err}
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, &LoadError{Path: path, Reason: "binary not found", Err: err}
	}
	if !info.Mode().IsRegular() {
		return nil, &LoadError{Path: path, Reason: "binary path is not a regular file"}
	}
	if opts.Checksum != "" {
		if err := verifyChecksum(path, opts.Checksum); err != nil {
			return nil, &LoadError{Path: path, Reason: "checksum verification failed", Err: err}
		}
	}

	l.logger.Info("loading scoring plugin", "binary", path)

	// #nosec G204 -- path is validated by validateBinaryPath
	client := plugin.NewClient(&plugin.ClientConfig{
		HandshakeConfig:  HandshakeConfig,
		Plugins:          PluginMap(nil),
		Cmd:              exec.Command(path),
		Logger:           newHclogAdapter(l.logger),
		AllowedProtocols: []plugin.Protocol{plugin.ProtocolNetRPC},
	})

	rpcClient, err := client.Client()
	if err != nil {
		client.Kill()
		return nil, &LoadError{Path: path, Reason: "failed to connect", Err: err}
	}
	raw, err := rpcClient.Dispense(PluginName)
	if err != nil {
		client.Kill()
		return nil, &LoadError{Path: path, Reason: "failed to dispense", Err: err}
	}
	factor, ok := raw.(Factor)
	if !ok {
		client.Kill()
		return nil, &LoadError{Path: path, Reason: "plugin does not implement Factor"}
	}

	l.mu.Lock()
	if old, exists := l.clients[path]; exists {
		old.Kill()
	}
	l.clients[path] = client
	l.mu.Unlock()

	name, err := factor.Name()
	if err != nil {
		name = filepath.Base(path)
	}
	l.logger.Info("scoring plugin loaded", "binary", path, "factor", name)
	return factor, nil
}

// Unload stops the plugin started from path.
func (l *Loader) Unload(path string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if client, ok := l.clients[path]; ok {
		client.Kill()
		delete(l.clients, path)
		l.logger.Info("scoring plugin unloaded", "binary", path)
	}
}

// UnloadAll stops every plugin.
func (l *Loader) UnloadAll() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for path, client := range l.clients {
		client.Kill()
		l.logger.Info("scoring plugin unloaded", "binary", path)
	}
	l.clients = make(map[string]*plugin.Client)
}

// Loaded reports whether a plugin from path is running.
func (l *Loader) Loaded(path string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.clients[path]
	return ok
}

// AsFactorFunc adapts a plugin factor to the severity scorer. A failing call logs and falls back;
// a nil fallback scores 0.5.
func AsFactorFunc(f Factor, fallback func(*domain.Conflict) float64, logger *slog.Logger) func(*domain.Conflict) float64 {
	if logger == nil {
		logger = slog.Default()
	}
	if fallback == nil {
		fallback = func(*domain.Conflict) float64 { return 0.5 }
	}
	return func(c *domain.Conflict) float64 {
		score, err := f.Score(NewFactorInput(c))
		if err != nil {
			logger.Warn("scoring plugin failed, using built-in factor",
				"conflict_id", c.ID,
				"error", err,
			)
			return fallback(c)
		}
		return score
	}
}

// validateBinaryPath rejects relative paths and shell metacharacters, and resolves symlinks.
func validateBinaryPath(path string) (string, error) {
	if i := strings.IndexAny(path, "\\'\""); i >= 0 {
		return "", fmt.Errorf("binary path contains forbidden character %q: %s", path[i], path)
	}
	return security.ValidateExecutablePath(path)
}

// verifyChecksum compares the SHA-256 of the file with "sha256:HEX" or bare HEX.
func verifyChecksum(path, expected string) error {
	algorithm, digest := "sha256", expected
	if a, d, ok := strings.Cut(expected, ":"); ok {
		algorithm, digest = strings.ToLower(a), d
	}
	if algorithm != "sha256" {
		return fmt.Errorf("unsupported checksum algorithm %s", algorithm)
	}

	// #nosec G304 -- path is validated by validateBinaryPath
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return err
	}
	if computed := hex.EncodeToString(hasher.Sum(nil)); !strings.EqualFold(computed, digest) {
		return fmt.Errorf("checksum mismatch: expected %s, got %s", digest, computed)
	}
	return nil
}
