package log

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"
)

// LogMessageWire is the JSON document handed to a Sink.
type LogMessageWire struct {
	Timestamp time.Time     `json:"timestamp"`
	Attrs     []LogAttrWire `json:"attrs,omitempty"`
	Level     string        `json:"level"`
	Message   string        `json:"message"`
	Source    string        `json:"source,omitempty"`
}

// LogAttrWire is one flattened attribute. Group members carry dotted keys.
type LogAttrWire struct {
	Key string `json:"key"`
	// Type is one of string, int64, uint64, bool, float64, time, duration,
	// error, json or any.
	Type  string `json:"type"`
	Value string `json:"value"`
}

// appendAttrWire flattens attr (recursively for groups) onto dst.
func appendAttrWire(dst []LogAttrWire, prefix string, attr slog.Attr) []LogAttrWire {
	attr.Value = attr.Value.Resolve()
	if attr.Equal(slog.Attr{}) {
		return dst
	}
	if attr.Value.Kind() == slog.KindGroup {
		groupPrefix := prefix
		if attr.Key != "" {
			groupPrefix += attr.Key + "."
		}
		for _, member := range attr.Value.Group() {
			dst = appendAttrWire(dst, groupPrefix, member)
		}
		return dst
	}
	attr.Key = prefix + attr.Key
	return append(dst, toLogAttrWire(attr))
}

// toLogAttrWire converts a non-group attribute.
func toLogAttrWire(attr slog.Attr) LogAttrWire {
	wire := LogAttrWire{Key: attr.Key}
	v := attr.Value.Resolve()

	switch v.Kind() {
	case slog.KindString:
		wire.Type, wire.Value = "string", v.String()
	case slog.KindInt64:
		wire.Type, wire.Value = "int64", strconv.FormatInt(v.Int64(), 10)
	case slog.KindUint64:
		wire.Type, wire.Value = "uint64", strconv.FormatUint(v.Uint64(), 10)
	case slog.KindBool:
		wire.Type, wire.Value = "bool", strconv.FormatBool(v.Bool())
	case slog.KindFloat64:
		wire.Type, wire.Value = "float64", strconv.FormatFloat(v.Float64(), 'g', -1, 64)
	case slog.KindTime:
		wire.Type, wire.Value = "time", v.Time().Format(time.RFC3339Nano)
	case slog.KindDuration:
		wire.Type, wire.Value = "duration", v.Duration().String()
	default:
		wire.Type, wire.Value = anyWire(v.Any())
	}
	return wire
}

func anyWire(v any) (typ, value string) {
	switch x := v.(type) {
	case nil:
		return "any", "<nil>"
	case error:
		return "error", x.Error()
	case fmt.Stringer:
		return "string", x.String()
	}
	if data, err := json.Marshal(v); err == nil {
		return "json", string(data)
	}
	return "any", fmt.Sprintf("%v", v)
}
