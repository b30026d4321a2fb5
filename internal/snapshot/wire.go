package snapshot

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// TimestampLayout matches the ISO-8601 form browsers produce with
// Date.prototype.toISOString (millisecond precision, UTC "Z" suffix).
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Wire is the JSON shape exchanged between publisher, endpoint and viewers.
type Wire struct {
	State      string `json:"state"`
	Message    string `json:"message"`
	Subagents  int    `json:"subagents"`
	LastUpdate string `json:"lastUpdate,omitempty"`
}

// ToWire converts a snapshot to its wire shape.
func (s Snapshot) ToWire() Wire {
	w := Wire{
		State:     string(s.State),
		Message:   s.Message,
		Subagents: s.Subagents,
	}
	if !s.Timestamp.IsZero() {
		w.LastUpdate = s.Timestamp.UTC().Format(TimestampLayout)
	}
	return w
}

// Encode renders the snapshot as indented wire JSON with a trailing newline,
// the format written to status files.
func Encode(s Snapshot) ([]byte, error) {
	data, err := json.MarshalIndent(s.ToWire(), "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// Decoded is the result of parsing a wire payload.
type Decoded struct {
	Snapshot Snapshot

	// HasTimestamp is false when lastUpdate was missing or unparseable;
	// staleness checks are skipped for such payloads.
	HasTimestamp bool
}

// Decode parses a wire payload, substituting defaults for missing, unknown
// or wrong-typed fields: state → idle, message → "", subagents → 0.
// A body that is not a JSON object, or an error envelope without a state,
// is rejected.
func Decode(data []byte) (Decoded, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Decoded{}, fmt.Errorf("snapshot: payload is not a JSON object")
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return Decoded{}, fmt.Errorf("snapshot: %w", err)
	}
	rawState, hasState := fields["state"]
	if _, hasError := fields["error"]; hasError && !hasState {
		return Decoded{}, fmt.Errorf("snapshot: payload is an error response")
	}

	out := Decoded{Snapshot: Snapshot{State: StateIdle}}
	if st, ok := decodeString(rawState); ok && IsServerState(State(st)) {
		out.Snapshot.State = State(st)
	}
	if msg, ok := decodeString(fields["message"]); ok {
		out.Snapshot.Message = msg
	}
	out.Snapshot.Subagents = decodeCount(fields["subagents"])
	if lu, ok := decodeString(fields["lastUpdate"]); ok {
		if ts, err := time.Parse(time.RFC3339, lu); err == nil {
			out.Snapshot.Timestamp = ts.UTC()
			out.HasTimestamp = true
		}
	}
	return out, nil
}

// decodeString reports ok only for a JSON string.
func decodeString(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// decodeCount returns a non-negative whole JSON number, or 0.
func decodeCount(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0
	}
	if f <= 0 || f != math.Trunc(f) || f > math.MaxInt32 {
		return 0
	}
	return int(f)
}

// MarshalJSON encodes the snapshot in wire shape.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.ToWire())
}

// UnmarshalJSON decodes a wire payload with default substitution.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	d, err := Decode(data)
	if err != nil {
		return err
	}
	*s = d.Snapshot
	return nil
}
