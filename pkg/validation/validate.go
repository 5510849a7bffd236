// Package validation enforces the structural rules on incoming messages
// before they enter the local conversation.
package validation

import (
	"fmt"

	"chatsync/pkg/models"
)

const maxPartBytes = 1 << 20

// ValidateMessage checks an inbound message payload. Timestamps are not
// validated here: creation stamping is the state layer's job.
func ValidateMessage(role models.Role, parts []models.Part) error {
	switch role {
	case models.RoleUser, models.RoleModel, models.RoleFunction:
	default:
		return fmt.Errorf("invalid role %q", role)
	}
	if len(parts) == 0 {
		return fmt.Errorf("message needs at least one part")
	}
	for i := range parts {
		if err := ValidatePart(&parts[i]); err != nil {
			return fmt.Errorf("part %d: %w", i, err)
		}
	}
	return nil
}

// ValidatePart checks that exactly one content variant is populated.
func ValidatePart(p *models.Part) error {
	variants := 0
	if p.Text != "" {
		variants++
	}
	if p.ExecutableCode != nil {
		variants++
	}
	if p.CodeExecutionResult != nil {
		variants++
	}
	if p.InlineData != nil {
		variants++
	}
	if p.FunctionResponse != nil {
		variants++
	}
	if variants == 0 {
		return fmt.Errorf("empty part")
	}
	if variants > 1 {
		return fmt.Errorf("multiple content variants populated")
	}
	if len(p.Content()) > maxPartBytes {
		return fmt.Errorf("part content exceeds %d bytes", maxPartBytes)
	}
	return nil
}
