package policy

// DomainTables is the built-in allowlist for the vehicle inspection store.
// Used when no allowlist file is configured.
func DomainTables() map[string][]string {
	return map[string][]string{
		"vehicle_cards": {
			"card_id", "vehicle_type", "manufacturer", "model", "manufacture_year", "created_at",
		},
		"damage_detections": {
			"damage_id", "card_id", "panel_name", "damage_type", "severity", "confidence", "detected_at",
		},
		"repairs": {
			"repair_id", "card_id", "panel_name", "repair_action", "repair_cost", "approved", "created_at",
		},
		"quotes": {
			"quote_id", "card_id", "total_estimated_cost", "currency", "generated_at",
		},
	}
}

// Default returns the built-in domain policy with default forbidden kinds.
func Default() *AllowlistPolicy {
	p, err := New(DomainTables())
	if err != nil {
		// DomainTables is a non-empty literal
		panic(err)
	}
	return p
}
