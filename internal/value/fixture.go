package value

import "encoding/json"

// jsonValue mirrors the tagged-union wire format cmd/boonrt reads for
// scripted event payloads (spec §6 "External interfaces" — a
// developer-facing fixture format, not part of the engine's own runtime
// contract, which only ever sees a Value interface value).
type jsonValue struct {
	Kind    string                     `json:"kind"`
	Num     float64                    `json:"num,omitempty"`
	Bool    bool                       `json:"bool,omitempty"`
	Text    string                     `json:"text,omitempty"`
	Name    string                     `json:"name,omitempty"`
	Payload json.RawMessage            `json:"payload,omitempty"`
	Fields  map[string]json.RawMessage `json:"fields,omitempty"`
	Items   []jsonListItem             `json:"items,omitempty"`
	Code    string                     `json:"code,omitempty"`
	Message string                     `json:"message,omitempty"`
}

type jsonListItem struct {
	Key   ItemKey         `json:"key"`
	Value json.RawMessage `json:"value"`
}

// DecodeJSON decodes one tagged-union Value from raw (see jsonValue for the
// wire shape). Used only by the cmd/boonrt fixture/script loader.
func DecodeJSON(raw json.RawMessage) (Value, error) {
	if len(raw) == 0 {
		return Skip, nil
	}
	var jv jsonValue
	if err := json.Unmarshal(raw, &jv); err != nil {
		return nil, err
	}
	switch jv.Kind {
	case "", "skip":
		return Skip, nil
	case "number":
		return Number(jv.Num), nil
	case "boolean":
		return Boolean(jv.Bool), nil
	case "text":
		return Text(jv.Text), nil
	case "tag":
		var payload Value
		if len(jv.Payload) > 0 {
			p, err := DecodeJSON(jv.Payload)
			if err != nil {
				return nil, err
			}
			payload = p
		}
		return NewTag(jv.Name, payload), nil
	case "record":
		rec := NewRecord()
		for k, raw := range jv.Fields {
			v, err := DecodeJSON(raw)
			if err != nil {
				return nil, err
			}
			rec = rec.Set(k, v)
		}
		return rec, nil
	case "list":
		items := make([]Item, 0, len(jv.Items))
		for _, it := range jv.Items {
			v, err := DecodeJSON(it.Value)
			if err != nil {
				return nil, err
			}
			items = append(items, Item{Key: it.Key, Value: v})
		}
		return NewList(items...), nil
	case "flush":
		var payload Value
		if len(jv.Payload) > 0 {
			p, err := DecodeJSON(jv.Payload)
			if err != nil {
				return nil, err
			}
			payload = p
		}
		return Flush{Payload: payload}, nil
	case "error":
		return NewError(jv.Code, jv.Message), nil
	default:
		return Skip, nil
	}
}
