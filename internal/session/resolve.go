package session

import (
	"os"

	"github.com/matheus3301/chatsync/internal/config"
)

const (
	DefaultSessionName = "main"
	// EnvSession names the session when no --session flag is given.
	EnvSession = "CHATSYNC_SESSION"
)

// Resolve picks the active session: the --session flag, then
// $CHATSYNC_SESSION, then default_session from config.toml, then "main".
// An unreadable config is treated as absent.
func Resolve(flagOverride string) string {
	if flagOverride != "" {
		return flagOverride
	}
	if env := os.Getenv(EnvSession); env != "" {
		return env
	}
	if cfg, err := config.LoadOrDefault(ConfigPath()); err == nil && cfg.DefaultSession != "" {
		return cfg.DefaultSession
	}
	return DefaultSessionName
}
