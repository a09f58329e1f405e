package models

import (
	"bytes"
	"encoding/json"
)

// Endpoint is one side of a movement: a named location or the system boundary.
// The zero value is External.
type Endpoint struct {
	location string
}

// External is the boundary where new stock enters or written-off stock leaves
func External() Endpoint {
	return Endpoint{}
}

// At returns the endpoint for a named location; an empty name means External
func At(location string) Endpoint {
	return Endpoint{location: location}
}

func (e Endpoint) IsExternal() bool {
	return e.location == ""
}

// Location returns the location key, empty for External
func (e Endpoint) Location() string {
	return e.location
}

// Is reports whether e is the named location
func (e Endpoint) Is(location string) bool {
	return !e.IsExternal() && e.location == location
}

func (e Endpoint) String() string {
	if e.IsExternal() {
		return "External"
	}
	return e.location
}

// MarshalJSON writes null for External
func (e Endpoint) MarshalJSON() ([]byte, error) {
	if e.IsExternal() {
		return []byte("null"), nil
	}
	return json.Marshal(e.location)
}

func (e *Endpoint) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*e = External()
		return nil
	}
	var location string
	if err := json.Unmarshal(data, &location); err != nil {
		return err
	}
	*e = At(location)
	return nil
}

// EndpointChange is an optional endpoint in a partial update. An explicit
// null in JSON sets the endpoint to External; an absent field leaves Set false.
type EndpointChange struct {
	Set      bool
	Endpoint Endpoint
}

// ChangeTo returns a change that sets the endpoint to e
func ChangeTo(e Endpoint) EndpointChange {
	return EndpointChange{Set: true, Endpoint: e}
}

func (c EndpointChange) MarshalJSON() ([]byte, error) {
	return c.Endpoint.MarshalJSON()
}

// UnmarshalJSON is only invoked for fields present in the document, null included
func (c *EndpointChange) UnmarshalJSON(data []byte) error {
	if err := c.Endpoint.UnmarshalJSON(data); err != nil {
		return err
	}
	c.Set = true
	return nil
}
