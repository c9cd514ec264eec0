package detect

import (
	"bytes"
	"encoding/json"
	"io"
	"strconv"

	"github.com/pkg/errors"
)

// ParseDetection decodes the detector output contract: a single JSON object
// whose keys are question numbers and whose values are strings, or an object
// carrying only an "error" message.
func ParseDetection(out []byte) (Detection, error) {
	dec := json.NewDecoder(bytes.NewReader(out))
	var raw map[string]json.RawMessage
	if err := dec.Decode(&raw); err != nil {
		return nil, fail(ReasonMalformed, "detector output is not a JSON object", err)
	}
	if raw == nil {
		return nil, fail(ReasonMalformed, "detector output is not a JSON object", nil)
	}
	var extra json.RawMessage
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return nil, fail(ReasonMalformed, "unexpected data after detector output", err)
	}

	if msg, ok := raw["error"]; ok {
		var s string
		if err := json.Unmarshal(msg, &s); err != nil {
			return nil, fail(ReasonMalformed, `detector "error" is not a string`, err)
		}
		return nil, fail(ReasonReported, s, nil)
	}

	det := make(Detection, len(raw))
	for k, v := range raw {
		n, err := strconv.Atoi(k)
		if err != nil || n < 1 || strconv.Itoa(n) != k {
			return nil, fail(ReasonMalformed, "detector output has invalid question number "+strconv.Quote(k), nil)
		}
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return nil, fail(ReasonMalformed, "detector value for question "+k+" is not a string", err)
		}
		det[k] = s
	}
	return det, nil
}
