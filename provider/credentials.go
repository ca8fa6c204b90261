package provider

import "context"

// CredentialKind classifies the scope of a resolved credential.
type CredentialKind string

const (
	// CredentialUserScoped is a credential bound to a single user.
	CredentialUserScoped CredentialKind = "user"
	// CredentialProcessWide is a credential shared by the whole process.
	CredentialProcessWide CredentialKind = "process"
	// CredentialSessionOnly marks that no streaming-capable credential is
	// available and the caller should fall back to session-only mode.
	CredentialSessionOnly CredentialKind = "session_only"
)

// Credential is the result of resolving a credential for a given user.
type Credential struct {
	Kind  CredentialKind
	Key   string
	Label string
}

// CredentialStore resolves usable credentials for provider calls. It is
// read-only during a run: the core never mutates process-wide
// environment state as a side effect of resolving a credential.
//
// Resolve tries a user-scoped key first, then a process-wide key, and
// finally returns a CredentialSessionOnly marker rather than an error when
// neither is available, so callers can fall back to the session backend.
type CredentialStore interface {
	Resolve(ctx context.Context, userID string) (Credential, error)
}
