package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Snowflake is a platform identifier in canonical string form. It decodes from
// either a JSON number or a JSON string so files written by older tooling that
// stored ids as integers keep loading.
type Snowflake string

func (s *Snowflake) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*s = Snowflake(strings.TrimSpace(str))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("snowflake: %w", err)
	}
	*s = Snowflake(n.String())
	return nil
}

func (s Snowflake) String() string { return string(s) }

// Strings converts a snowflake slice to plain strings.
func Strings(ids []Snowflake) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, string(id))
	}
	return out
}
