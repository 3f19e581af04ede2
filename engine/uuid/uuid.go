package uuid

import (
	"github.com/google/uuid"
)

// UUID_LENGTH is length of a UUID in its canonical string form
const UUID_LENGTH = 36

// GenUUID generates a new random UUID string
func GenUUID() string {
	return uuid.New().String()
}

// IsUUID checks if the string is a well formed UUID
func IsUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
