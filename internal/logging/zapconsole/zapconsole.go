// Package zapconsole renders zap entries as aligned columns for terminals.
package zapconsole

import (
	"fmt"
	"maps"
	"slices"
	"time"

	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

const ResponseLoggerName = "responseLogger"

// column keys lifted out of the trailing key=value list
var pinnedKeys = []string{"session_id", "phase"}

var _pool = buffer.NewPool()

type ConsoleEncoder struct {
	*zapcore.MapObjectEncoder
	*zapcore.EncoderConfig
}

func NewConsoleEncoder(encConfig *zapcore.EncoderConfig) *ConsoleEncoder {
	return &ConsoleEncoder{
		MapObjectEncoder: zapcore.NewMapObjectEncoder(),
		EncoderConfig:    encConfig,
	}
}

func (enc *ConsoleEncoder) Clone() zapcore.Encoder {
	clone := NewConsoleEncoder(enc.EncoderConfig)
	maps.Copy(clone.Fields, enc.Fields)

	return clone
}

func (enc *ConsoleEncoder) EncodeEntry(ent zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	values := zapcore.NewMapObjectEncoder()
	maps.Copy(values.Fields, enc.Fields)

	for idx := range fields {
		fields[idx].AddTo(values)
	}

	columns := []string{
		ent.Time.Format("2006-01-02T15:04:05.000Z0700"),
		ent.Level.CapitalString(),
	}

	if ent.LoggerName == ResponseLoggerName {
		columns = append(columns, encodeResponse(values.Fields)...)
	} else {
		columns = append(columns, enc.encodeLog(&ent, values.Fields)...)
	}

	line := _pool.Get()

	for idx, column := range columns {
		if idx > 0 {
			line.AppendString(enc.ConsoleSeparator)
		}

		line.AppendString(column)
	}

	if ent.Stack != "" && enc.StacktraceKey != "" {
		line.AppendByte('\n')
		line.AppendString(ent.Stack)
	}

	line.AppendString(enc.LineEnding)

	return line, nil
}

func encodeResponse(values map[string]any) []string {
	var duration time.Duration
	if d, ok := values["duration"].(time.Duration); ok {
		duration = d
	}

	return []string{
		fmt.Sprint(valueOrEmpty(values, "status")),
		fmt.Sprint(valueOrEmpty(values, "method")),
		fmt.Sprint(valueOrEmpty(values, "path")),
		fmt.Sprint(valueOrEmpty(values, "session_id")),
		duration.String(),
	}
}

func (enc *ConsoleEncoder) encodeLog(ent *zapcore.Entry, values map[string]any) []string {
	var columns []string

	if ent.Caller.Defined && enc.CallerKey != "" {
		columns = append(columns, ent.Caller.TrimmedPath())
	}

	for _, key := range pinnedKeys {
		if v, ok := values[key]; ok {
			columns = append(columns, fmt.Sprint(v))
		}
	}

	columns = append(columns, ent.Message)

	if v, ok := values["error"]; ok {
		columns = append(columns, fmt.Sprint(v))
	}

	for _, key := range slices.Sorted(maps.Keys(values)) {
		if key == "error" || slices.Contains(pinnedKeys, key) {
			continue
		}

		columns = append(columns, fmt.Sprintf("%s=%v", key, values[key]))
	}

	return columns
}

func valueOrEmpty(values map[string]any, key string) any {
	if v, ok := values[key]; ok {
		return v
	}

	return ""
}
