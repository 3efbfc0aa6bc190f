package ids

import (
	"strings"

	"github.com/google/uuid"
)

// Generate returns a random uuid with the dashes stripped.
// Used for message ids, server instance ids and session ids; ids must be
// globally unique across instances without any node coordination.
func Generate() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
