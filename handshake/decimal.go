package handshake

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Decimal decodes a JSON number or a numeric string. The backend renders
// decimal columns such as hours and balances as strings like "2.00".
type Decimal float64

func (d *Decimal) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	raw := string(data)
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("handshake: decode decimal: %w", err)
		}
		raw = strings.TrimSpace(raw)
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("handshake: decode decimal %q: %w", raw, err)
	}
	*d = Decimal(f)
	return nil
}

func (r *Record) UnmarshalJSON(data []byte) error {
	type plain Record
	wire := struct {
		*plain
		Hours Decimal `json:"hours"`
	}{plain: (*plain)(r)}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	r.Hours = float64(wire.Hours)
	return nil
}

func (p *Partial) UnmarshalJSON(data []byte) error {
	type plain Partial
	wire := struct {
		*plain
		Hours *Decimal `json:"hours"`
	}{plain: (*plain)(p)}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	if wire.Hours != nil {
		h := float64(*wire.Hours)
		p.Hours = &h
	}
	return nil
}
