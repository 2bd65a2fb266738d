package auth

import "errors"

var (
	// ErrKeyNotFound signals that no API key matches the prefix.
	ErrKeyNotFound = errors.New("api key not found")
	// ErrPrefixTaken is returned when a generated key prefix is already stored.
	ErrPrefixTaken = errors.New("api key prefix already taken")
	// ErrNameRequired rejects API keys without a name.
	ErrNameRequired = errors.New("api key name required")
	// ErrUnauthorized represents missing or invalid credentials.
	ErrUnauthorized = errors.New("unauthorized")
)
