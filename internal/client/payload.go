package client

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// RawForecast is the subset of the timeline API response the service consumes.
type RawForecast struct {
	ResolvedAddress string   `json:"resolvedAddress" validate:"required"`
	Days            []RawDay `json:"days" validate:"required,dive"`
}

// RawDay is one daily entry of the timeline API response.
type RawDay struct {
	Datetime string `json:"datetime" validate:"required"`
	TempMax  Scalar `json:"tempmax" validate:"required"`
	TempMin  Scalar `json:"tempmin" validate:"required"`
	Humidity Scalar `json:"humidity" validate:"required"`
	Icon     string `json:"icon" validate:"required"`
}

// Scalar holds a JSON number or string as its literal text ("8.8" stays "8.8").
// The value is never interpreted numerically.
type Scalar string

// UnmarshalJSON implements json.Unmarshaler.
func (s *Scalar) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*s = ""
		return nil
	}
	if b[0] == '"' {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		*s = Scalar(str)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("scalar: want number or string, got %s", b)
	}
	*s = Scalar(n.String())
	return nil
}

// String returns the literal text.
func (s Scalar) String() string {
	return string(s)
}
