package tool

import "github.com/google/uuid"

// GenerateUUIDV7 returns a time-ordered UUID string, used as the primary key
// for all persisted records.
func GenerateUUIDV7() string {
	return uuid.Must(uuid.NewV7()).String()
}
