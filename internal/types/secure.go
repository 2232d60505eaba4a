package types

import "encoding/json"

// redactedPlaceholder is what a SecretString renders as outside Unmask.
const redactedPlaceholder = "[REDACTED]"

// SecretString is a string type that prevents accidental logging or
// serialization of sensitive values such as API keys and connection strings.
// The raw value is only reachable through Unmask.
type SecretString string

// String implements fmt.Stringer and always returns the redaction marker.
func (s SecretString) String() string {
	return redactedPlaceholder
}

// MarshalJSON serializes the redaction marker, never the raw value.
func (s SecretString) MarshalJSON() ([]byte, error) {
	return json.Marshal(redactedPlaceholder)
}

// Unmask returns the raw secret value.
func (s SecretString) Unmask() string {
	return string(s)
}
