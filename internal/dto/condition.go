package dto

// ResolveConditionRequest completes or rejects one coordinator condition.
type ResolveConditionRequest struct {
	Notes string `json:"notes"`
}
