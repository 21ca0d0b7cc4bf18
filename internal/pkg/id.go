package pkg

import "github.com/google/uuid"

// GenerateNewSessionID - generates a new unique sessionID.
func GenerateNewSessionID() string {
	return uuid.New().String()
}

// GenerateMatchID - generates a unique identifier for a match.
func GenerateMatchID() string {
	return uuid.New().String()
}
