package constants

import "time"

// SessionState represents the current screen of the TUI application
type SessionState int

const (
	AppName            = "routineo"
	DefaultKeyringUser = "database-connection"
	DefaultConfigDir   = "~/.config/routineo"
	DefaultConfigPath  = "~/.config/routineo/routineo.db"
	Version            = "v0.3.0"

	// Document store collections
	CollectionItems    = "items"
	CollectionSettings = "user_settings"
	CollectionAccounts = "accounts"

	// PostgreSQL notification channel used to fan out commits to subscribers
	NotifyChannel = "routineo_documents"

	// Local store keys
	LastResetKeyPrefix = "routineo_last_reset"
	SessionTokenKey    = "routineo_session"
	SessionSigningKey  = "routineo_session_key"
	LocalStoreFileName = "local.json"

	// Local store backends
	LocalStoreKeyring = "keyring"
	LocalStoreFile    = "file"
	LocalStoreAuto    = "auto"

	// Auth retry policy
	AuthMaxAttempts = 3
	AuthRetryDelay  = 250 * time.Millisecond

	// Sign-in throttling
	MaxFailedSignIns   = 5
	FailedSignInWindow = 5 * time.Minute

	// Sessions
	DefaultSessionTTL = 30 * 24 * time.Hour
	MinPasswordLength = 8
)

const (
	// Session States
	StateResolving SessionState = iota
	StateSignIn
	StateItems
	StateAddItem
	StateEditItem
	StateSettings
	StateConfirmDelete
)
