// Package clipboard wraps the platform clipboard for invite-link
// sharing.
package clipboard

import (
	"log"

	"github.com/atotto/clipboard"
)

// Copy places text on the system clipboard and reports success.
func Copy(text string) bool {
	if err := clipboard.WriteAll(text); err != nil {
		log.Printf("WARN: Clipboard write failed: %v", err)
		return false
	}
	return true
}
