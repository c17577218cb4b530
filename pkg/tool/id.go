package tool

import "github.com/google/uuid"

// GenerateUUIDV7 returns a time-ordered id for order notes and IPN audit
// rows, so index-order matches arrival order.
func GenerateUUIDV7() string {
	return uuid.Must(uuid.NewV7()).String()
}
