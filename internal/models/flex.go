package models

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// FlexFloat decodes a number that may arrive as a JSON number, a numeric
// string, or null. Anything unparsable or non-finite ("NaN", "Inf") decodes
// as invalid instead of failing.
type FlexFloat struct {
	Value float64
	Valid bool
}

// Float returns a valid FlexFloat.
func Float(v float64) FlexFloat {
	return FlexFloat{Value: v, Valid: true}
}

func (f *FlexFloat) UnmarshalJSON(data []byte) error {
	*f = FlexFloat{}
	v, ok := parseFlexNumber(data)
	if ok {
		*f = FlexFloat{Value: v, Valid: true}
	}
	return nil
}

func (f FlexFloat) MarshalJSON() ([]byte, error) {
	if !f.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(f.Value)
}

// FlexBool decodes true/false given as JSON booleans or strings.
type FlexBool bool

func (b *FlexBool) UnmarshalJSON(data []byte) error {
	var v bool
	if err := json.Unmarshal(data, &v); err == nil {
		*b = FlexBool(v)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*b = FlexBool(strings.EqualFold(strings.TrimSpace(s), "true"))
		return nil
	}
	*b = false
	return nil
}

// PriceList decodes outcomePrices, which Gamma sends as a JSON-encoded string
// ("[\"0.75\", \"0.25\"]") and other sources send as a plain list.
// Present records whether the field carried anything; Values is empty when it
// was present but unparsable.
type PriceList struct {
	Values  []float64
	Present bool
}

// Prices returns a present PriceList.
func Prices(values ...float64) PriceList {
	return PriceList{Values: values, Present: true}
}

func (p *PriceList) UnmarshalJSON(data []byte) error {
	*p = PriceList{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	var encoded string
	if err := json.Unmarshal(data, &encoded); err == nil {
		if strings.TrimSpace(encoded) == "" {
			return nil
		}
		p.Present = true
		data = []byte(encoded)
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		p.Present = true
		return nil
	}
	if len(raw) == 0 {
		return nil
	}
	p.Present = true
	values := make([]float64, 0, len(raw))
	for _, r := range raw {
		v, ok := parseFlexNumber(r)
		if !ok {
			return nil
		}
		values = append(values, v)
	}
	p.Values = values
	return nil
}

func (p PriceList) MarshalJSON() ([]byte, error) {
	if !p.Present {
		return []byte("null"), nil
	}
	return json.Marshal(p.Values)
}

// Tag is an event tag. Gamma sends objects; some fixtures send bare strings.
type Tag struct {
	ID    string `json:"id,omitempty"`
	Label string `json:"label"`
	Slug  string `json:"slug,omitempty"`
}

func (t *Tag) UnmarshalJSON(data []byte) error {
	var label string
	if err := json.Unmarshal(data, &label); err == nil {
		*t = Tag{Label: label}
		return nil
	}
	var v struct {
		ID    json.RawMessage `json:"id"`
		Label string          `json:"label"`
		Slug  string          `json:"slug"`
	}
	if err := json.Unmarshal(data, &v); err != nil {
		*t = Tag{}
		return nil
	}
	*t = Tag{
		ID:    strings.Trim(string(v.ID), `"`),
		Label: v.Label,
		Slug:  v.Slug,
	}
	return nil
}

func parseFlexNumber(data []byte) (float64, bool) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return 0, false
	}
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		return n, true
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
