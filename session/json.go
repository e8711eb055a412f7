package session

import "encoding/json"

// MarshalJSON flattens Unknown fields alongside the known ones so a
// session loaded from a newer engine version round-trips fields this
// version doesn't recognize (spec.md §6: "unknown fields on load are
// preserved but ignored").
func (s *Session) MarshalJSON() ([]byte, error) {
	type alias Session
	known, err := json.Marshal((*alias)(s))
	if err != nil {
		return nil, err
	}

	if len(s.Unknown) == 0 {
		return known, nil
	}

	merged := make(map[string]json.RawMessage, len(s.Unknown)+8)
	if err := json.Unmarshal(known, &merged); err != nil {
		return nil, err
	}
	for k, v := range s.Unknown {
		if _, exists := merged[k]; exists {
			continue // known fields always win
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		merged[k] = raw
	}

	return json.Marshal(merged)
}

// UnmarshalJSON decodes the known fields normally and stashes any
// remaining top-level keys into Unknown.
func (s *Session) UnmarshalJSON(data []byte) error {
	type alias Session
	if err := json.Unmarshal(data, (*alias)(s)); err != nil {
		return err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	known, err := json.Marshal((*alias)(s))
	if err != nil {
		return err
	}
	var knownKeys map[string]json.RawMessage
	if err := json.Unmarshal(known, &knownKeys); err != nil {
		return err
	}

	var unknown map[string]any
	for k, v := range raw {
		if _, isKnown := knownKeys[k]; isKnown {
			continue
		}
		if unknown == nil {
			unknown = make(map[string]any)
		}
		var val any
		if err := json.Unmarshal(v, &val); err != nil {
			return err
		}
		unknown[k] = val
	}
	s.Unknown = unknown

	return nil
}
