package utils

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const referenceAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// GenerateBookingReference creates a human-readable booking reference.
// Format: PRK-YYYYMMDD-XXXXXX (random part drawn from a fresh UUID)
func GenerateBookingReference(now time.Time) string {
	id := uuid.New()

	var sb strings.Builder
	for i := 0; i < 6; i++ {
		sb.WriteByte(referenceAlphabet[int(id[i])%len(referenceAlphabet)])
	}

	return fmt.Sprintf("PRK-%s-%s", now.UTC().Format("20060102"), sb.String())
}
