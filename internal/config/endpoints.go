package config

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// EndpointList preserves the declaration order of the "endpoints"
// object. encoding/json hands map keys back in random order, which
// would make the router's tie-break (earlier declaration wins)
// nondeterministic, so the list decodes itself token by token.
type EndpointList []Endpoint

func (l *EndpointList) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*l = nil
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("endpoints: expected object, got %v", tok)
	}

	var out EndpointList
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		pattern, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("endpoints: bad key %v", keyTok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("endpoints[%q]: %w", pattern, err)
		}
		var ep Endpoint
		if err := json.Unmarshal(raw, &ep); err != nil {
			return fmt.Errorf("endpoints[%q]: %w", pattern, err)
		}
		ep.Pattern = pattern
		out = append(out, ep)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*l = out
	return nil
}

func (l EndpointList) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, ep := range l {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(ep.Pattern)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(ep)
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
