package arbor

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"time"

	"github.com/jinzhu/now"

	"github.com/arbor-orm/arbor/schema"
)

const dateTimeLayout = "2006-01-02 15:04:05"
const dateLayout = "2006-01-02"

// Get reads one attribute through the pipeline: accessor first, then
// declared cast, then date parsing, then the raw value. Cast failures
// surface through GetChecked; Get returns the zero result.
func (e *Entity) Get(column string) interface{} {
	value, _ := e.GetChecked(column)
	return value
}

// GetChecked is Get with the cast error surfaced.
func (e *Entity) GetChecked(column string) (interface{}, error) {
	raw := e.attributes[column]

	if accessor, ok := e.schema.Accessor(column); ok {
		return accessor(raw), nil
	}
	if cast, ok := e.schema.Casts[column]; ok {
		return castValue(column, cast, raw)
	}
	if e.schema.IsDate(column) {
		return castValue(column, schema.Date, raw)
	}
	return raw, nil
}

// GetTime reads a date attribute as time.Time; ok is false when the
// attribute is unset or unparsable.
func (e *Entity) GetTime(column string) (time.Time, bool) {
	value, err := castValue(column, schema.Date, e.attributes[column])
	if err != nil || value == nil {
		return time.Time{}, false
	}
	t, ok := value.(time.Time)
	return t, ok
}

func castValue(column string, cast schema.CastType, raw interface{}) (interface{}, error) {
	if raw == nil {
		return nil, nil
	}

	fail := func(err error) (interface{}, error) {
		return nil, &CastError{Column: column, Cast: cast, Err: err}
	}

	switch cast {
	case schema.Int:
		switch v := raw.(type) {
		case int:
			return int64(v), nil
		case int8:
			return int64(v), nil
		case int16:
			return int64(v), nil
		case int32:
			return int64(v), nil
		case int64:
			return v, nil
		case uint:
			return int64(v), nil
		case uint64:
			return int64(v), nil
		case float32:
			return int64(v), nil
		case float64:
			return int64(v), nil
		case bool:
			if v {
				return int64(1), nil
			}
			return int64(0), nil
		case []byte:
			return parseInt(string(v), fail)
		case string:
			return parseInt(v, fail)
		}
		return fail(fmt.Errorf("unsupported source %T", raw))

	case schema.Float:
		switch v := raw.(type) {
		case float32:
			return float64(v), nil
		case float64:
			return v, nil
		case int:
			return float64(v), nil
		case int64:
			return float64(v), nil
		case []byte:
			return parseFloat(string(v), fail)
		case string:
			return parseFloat(v, fail)
		}
		return fail(fmt.Errorf("unsupported source %T", raw))

	case schema.Str:
		switch v := raw.(type) {
		case string:
			return v, nil
		case []byte:
			return string(v), nil
		}
		return fmt.Sprintf("%v", raw), nil

	case schema.Bool:
		switch v := raw.(type) {
		case bool:
			return v, nil
		case int:
			return v != 0, nil
		case int64:
			return v != 0, nil
		case float64:
			return v != 0, nil
		case []byte:
			return parseBool(string(v), fail)
		case string:
			return parseBool(v, fail)
		}
		return fail(fmt.Errorf("unsupported source %T", raw))

	case schema.Dict:
		switch v := raw.(type) {
		case map[string]interface{}:
			return v, nil
		case []byte:
			return decodeDict(v, fail)
		case string:
			return decodeDict([]byte(v), fail)
		}
		return fail(fmt.Errorf("unsupported source %T", raw))

	case schema.List:
		switch v := raw.(type) {
		case []interface{}:
			return v, nil
		case []byte:
			return decodeList(v, fail)
		case string:
			return decodeList([]byte(v), fail)
		}
		return fail(fmt.Errorf("unsupported source %T", raw))

	case schema.Date:
		switch v := raw.(type) {
		case time.Time:
			return v, nil
		case *time.Time:
			if v == nil {
				return nil, nil
			}
			return *v, nil
		case int:
			return time.Unix(int64(v), 0), nil
		case int64:
			return time.Unix(v, 0), nil
		case float64:
			return time.Unix(int64(v), 0), nil
		case []byte:
			return parseDate(string(v), fail)
		case string:
			return parseDate(v, fail)
		}
		return fail(fmt.Errorf("unsupported source %T", raw))
	}

	return raw, nil
}

func parseInt(s string, fail func(error) (interface{}, error)) (interface{}, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fail(err)
	}
	return n, nil
}

func parseFloat(s string, fail func(error) (interface{}, error)) (interface{}, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fail(err)
	}
	return f, nil
}

func parseBool(s string, fail func(error) (interface{}, error)) (interface{}, error) {
	b, err := strconv.ParseBool(s)
	if err != nil {
		return fail(err)
	}
	return b, nil
}

func decodeDict(data []byte, fail func(error) (interface{}, error)) (interface{}, error) {
	var out map[string]interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return fail(err)
	}
	return out, nil
}

func decodeList(data []byte, fail func(error) (interface{}, error)) (interface{}, error) {
	var out []interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return fail(err)
	}
	return out, nil
}

// parseDate accepts `YYYY-MM-DD`, full datetime strings and anything
// now.Parse understands.
func parseDate(s string, fail func(error) (interface{}, error)) (interface{}, error) {
	if len(s) == len(dateLayout) {
		if t, err := time.Parse(dateLayout, s); err == nil {
			return t, nil
		}
	}
	t, err := now.Parse(s)
	if err != nil {
		return fail(err)
	}
	return t, nil
}

// serializeAttribute prepares one attribute value for a mutation:
// dict/list casts are JSON-encoded, date values formatted, everything
// else passes through raw. Encoding failures are reported, never
// dropped.
func serializeAttribute(s *schema.Schema, column string, value interface{}) (interface{}, error) {
	if value == nil {
		return nil, nil
	}

	if cast, ok := s.Casts[column]; ok && (cast == schema.Dict || cast == schema.List) {
		switch v := value.(type) {
		case string:
			return v, nil
		case []byte:
			return string(v), nil
		default:
			data, err := json.Marshal(value)
			if err != nil {
				return nil, &CastError{Column: column, Cast: cast, Err: err}
			}
			return string(data), nil
		}
	}

	if s.IsDate(column) {
		if t, ok := value.(time.Time); ok {
			return t.Format(dateTimeLayout), nil
		}
	}

	if t, ok := value.(time.Time); ok {
		return t.Format(dateTimeLayout), nil
	}
	return value, nil
}

// equalValues compares attribute values loosely enough to survive
// driver-dependent numeric widths.
func equalValues(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if reflect.DeepEqual(a, b) {
		return true
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

// keyOf normalizes a key value for partition matching.
func keyOf(value interface{}) string {
	if value == nil {
		return ""
	}
	if b, ok := value.([]byte); ok {
		return string(b)
	}
	return fmt.Sprintf("%v", value)
}
