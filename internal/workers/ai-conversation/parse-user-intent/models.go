// internal/workers/ai-conversation/parse-user-intent/models.go
package parseuserintent

import "crm-assistant/internal/models"

// Result is either a structured intent or a conversational turn.
type Result struct {
	Intent       *models.Intent
	Conversation bool
	// Fallback is set when the conversation was recovered by smalltalk matching.
	Fallback bool
}
