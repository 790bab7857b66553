package wyoming

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"maps"
)

// Event is a single Wyoming protocol message. On the wire each event is a
// JSON header line followed by optional data and payload sections:
//
//	{"type":"...","data_length":N,"payload_length":M}\n
//	<N bytes of JSON data>
//	<M bytes of payload>
type Event struct {
	Type string
	Data map[string]any
}

type header struct {
	Type          string         `json:"type"`
	Data          map[string]any `json:"data,omitempty"`
	DataLength    int            `json:"data_length,omitempty"`
	PayloadLength int            `json:"payload_length,omitempty"`
}

// WriteEvent sends a Wyoming event with an optional binary payload.
func WriteEvent(w io.Writer, evt Event, payload []byte) error {
	h := header{Type: evt.Type, PayloadLength: len(payload)}

	var data []byte
	if len(evt.Data) > 0 {
		var err error
		if data, err = json.Marshal(evt.Data); err != nil {
			return fmt.Errorf("marshalling event data: %w", err)
		}
		h.DataLength = len(data)
	}

	line, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("marshalling event header: %w", err)
	}
	if _, err := w.Write(append(line, '\n')); err != nil {
		return err
	}
	if len(data) > 0 {
		if _, err := w.Write(data); err != nil {
			return err
		}
	}
	if len(payload) > 0 {
		if _, err := w.Write(payload); err != nil {
			return err
		}
	}
	return nil
}

// ReadEvent reads one Wyoming event and its payload.
func ReadEvent(r *bufio.Reader) (*Event, []byte, error) {
	line, err := r.ReadBytes('\n')
	if err != nil {
		return nil, nil, fmt.Errorf("reading header: %w", err)
	}

	var h header
	if err := json.Unmarshal(line, &h); err != nil {
		return nil, nil, fmt.Errorf("invalid wyoming header %q: %w", line, err)
	}
	if h.DataLength < 0 || h.PayloadLength < 0 {
		return nil, nil, fmt.Errorf("invalid wyoming header %q: negative length", line)
	}

	evt := &Event{Type: h.Type, Data: h.Data}
	if h.DataLength > 0 {
		buf := make([]byte, h.DataLength)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, nil, fmt.Errorf("reading data: %w", err)
		}
		var extra map[string]any
		if err := json.Unmarshal(buf, &extra); err != nil {
			return nil, nil, fmt.Errorf("unmarshalling event data: %w", err)
		}
		if evt.Data == nil {
			evt.Data = extra
		} else {
			maps.Copy(evt.Data, extra)
		}
	}

	var payload []byte
	if h.PayloadLength > 0 {
		payload = make([]byte, h.PayloadLength)
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, nil, fmt.Errorf("reading payload: %w", err)
		}
	}
	return evt, payload, nil
}

func intField(data map[string]any, key string, def int) int {
	if v, ok := data[key].(float64); ok && v > 0 {
		return int(v)
	}
	return def
}
