package engine

import (
	"novel-client/internal/models"
)

// SelectEnding picks the ending to play. Candidates are evaluated in
// backend list order and the first condition match wins; if nothing
// matches, the first ending is the explicit fallback — a story never ends
// without an ending. A creator actor bypasses evaluation entirely, which
// is a deliberate authoring override.
func SelectEnding(endings []models.Ending, attributes map[string]interface{}, creator bool) (*models.Ending, error) {
	if len(endings) == 0 {
		return nil, models.ErrNoEndingsAvailable
	}
	if creator {
		return &endings[0], nil
	}
	for i := range endings {
		if EvaluateCondition(endings[i].Condition, attributes) {
			return &endings[i], nil
		}
	}
	return &endings[0], nil
}

// SelectEndingByIndex returns the candidate with the given stable index.
func SelectEndingByIndex(endings []models.Ending, index int) (*models.Ending, error) {
	for i := range endings {
		if endings[i].Index == index {
			return &endings[i], nil
		}
	}
	return nil, models.ErrEndingNotFound
}
