package app

import "context"

// The interfaces below belong to the environment manager that embeds the
// usage engine. The engine itself never calls them.

// SecretDecrypter decrypts a stored credential.
type SecretDecrypter interface {
	Decrypt(ciphertext string) (string, error)
}

// Environment is a named set of variables for the assistant CLI.
type Environment struct {
	Name string
	Vars map[string]string
}

// EnvironmentProvider returns the active environment.
type EnvironmentProvider interface {
	Current() (Environment, error)
}

// Launcher starts the assistant CLI with an environment applied.
type Launcher interface {
	Launch(ctx context.Context, env Environment, args []string) error
}
