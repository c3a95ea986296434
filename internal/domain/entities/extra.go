package entities

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// productFields and shelfFields carry the modelled fields without the JSON
// methods below. Keys outside them end up in Extra and are written back
// unchanged.
type productFields Product

type shelfFields Shelf

var (
	productKeys = jsonKeys(reflect.TypeOf(Product{}))
	shelfKeys   = jsonKeys(reflect.TypeOf(Shelf{}))
)

func jsonKeys(t reflect.Type) map[string]struct{} {
	keys := make(map[string]struct{}, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		name, _, _ := strings.Cut(t.Field(i).Tag.Get("json"), ",")
		if name == "" || name == "-" {
			continue
		}
		keys[name] = struct{}{}
	}
	return keys
}

// UnmarshalJSON decodes the modelled fields and keeps the rest in Extra.
func (p *Product) UnmarshalJSON(data []byte) error {
	var fields productFields
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	extra, err := extraFromJSON(data, productKeys)
	if err != nil {
		return err
	}
	*p = Product(fields)
	p.Extra = extra
	return nil
}

// MarshalJSON writes the modelled fields followed by Extra.
func (p Product) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(productFields(p))
	if err != nil {
		return nil, err
	}
	return AppendFields(data, p.Extra, productKeys)
}

// UnmarshalYAML decodes seed entries the same way UnmarshalJSON does.
func (p *Product) UnmarshalYAML(value *yaml.Node) error {
	var fields productFields
	if err := value.Decode(&fields); err != nil {
		return err
	}
	extra, err := extraFromYAML(value, productKeys)
	if err != nil {
		return err
	}
	*p = Product(fields)
	p.Extra = extra
	return nil
}

// UnmarshalJSON decodes the modelled fields and keeps the rest in Extra.
func (s *Shelf) UnmarshalJSON(data []byte) error {
	var fields shelfFields
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	extra, err := extraFromJSON(data, shelfKeys)
	if err != nil {
		return err
	}
	*s = Shelf(fields)
	s.Extra = extra
	return nil
}

// MarshalJSON writes the modelled fields followed by Extra.
func (s Shelf) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(shelfFields(s))
	if err != nil {
		return nil, err
	}
	return AppendFields(data, s.Extra, shelfKeys)
}

// UnmarshalYAML decodes seed shelves the same way UnmarshalJSON does.
func (s *Shelf) UnmarshalYAML(value *yaml.Node) error {
	var fields shelfFields
	if err := value.Decode(&fields); err != nil {
		return err
	}
	extra, err := extraFromYAML(value, shelfKeys)
	if err != nil {
		return err
	}
	*s = Shelf(fields)
	s.Extra = extra
	return nil
}

func extraFromJSON(data []byte, known map[string]struct{}) (map[string]json.RawMessage, error) {
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}
	var extra map[string]json.RawMessage
	for k, v := range all {
		if _, ok := known[k]; ok {
			continue
		}
		if extra == nil {
			extra = make(map[string]json.RawMessage)
		}
		extra[k] = v
	}
	return extra, nil
}

func extraFromYAML(value *yaml.Node, known map[string]struct{}) (map[string]json.RawMessage, error) {
	if value.Kind != yaml.MappingNode {
		return nil, nil
	}
	var extra map[string]json.RawMessage
	for i := 0; i+1 < len(value.Content); i += 2 {
		key := value.Content[i].Value
		if _, ok := known[key]; ok {
			continue
		}
		var v interface{}
		if err := value.Content[i+1].Decode(&v); err != nil {
			return nil, fmt.Errorf("field %s: %w", key, err)
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", key, err)
		}
		if extra == nil {
			extra = make(map[string]json.RawMessage)
		}
		extra[key] = raw
	}
	return extra, nil
}

// AppendFields adds fields to the JSON object in data, in key order. Keys in
// skip are left out.
func AppendFields(data []byte, fields map[string]json.RawMessage, skip map[string]struct{}) ([]byte, error) {
	if len(fields) == 0 {
		return data, nil
	}
	data = bytes.TrimSpace(data)
	if len(data) < 2 || data[0] != '{' || data[len(data)-1] != '}' {
		return nil, fmt.Errorf("append fields: not a JSON object")
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		if _, ok := skip[k]; !ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.Write(data[:len(data)-1])
	empty := len(bytes.TrimSpace(data[1:len(data)-1])) == 0
	for _, k := range keys {
		if !empty {
			buf.WriteByte(',')
		}
		empty = false

		name, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		if v := fields[k]; len(v) > 0 {
			buf.Write(v)
		} else {
			buf.WriteString("null")
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func mergeExtra(fallback, payload map[string]json.RawMessage) map[string]json.RawMessage {
	if len(fallback) == 0 && len(payload) == 0 {
		return nil
	}
	out := make(map[string]json.RawMessage, len(fallback)+len(payload))
	for k, v := range fallback {
		out[k] = v
	}
	for k, v := range payload {
		out[k] = v
	}
	return out
}
