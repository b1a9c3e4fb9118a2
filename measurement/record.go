package measurement

import (
	"encoding/json"

	"github.com/c360/vehiclehub/errors"
)

// Record is the wire form of a single measurement in a trace file or on a
// streaming connection: one JSON object per line.
//
// Timestamp is seconds since the Unix epoch (fractional), matching the
// trace format recorded by the sink and replayed by the trace source.
// A zero timestamp means "not recorded".
type Record struct {
	Timestamp float64 `json:"timestamp,omitempty"`
	Name      string  `json:"name"`
	Value     any     `json:"value,omitempty"`
	Event     any     `json:"event,omitempty"`
}

// ParseRecord decodes a single JSON trace line.
func ParseRecord(line []byte) (Record, error) {
	var r Record
	if err := json.Unmarshal(line, &r); err != nil {
		return Record{}, errors.WrapInvalid(err, "Record", "ParseRecord", "JSON decode")
	}
	if r.Name == "" {
		return Record{}, errors.WrapInvalid(errors.ErrInvalidData, "Record", "ParseRecord", "name validation")
	}
	return r, nil
}

// Marshal encodes the record as a single JSON line without trailing newline.
func (r Record) Marshal() ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Record", "Marshal", "JSON encode")
	}
	return data, nil
}
