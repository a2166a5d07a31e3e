package render

import (
	"bytes"
	"encoding/json"
	"slices"
	"strings"
)

// Codecs accepted by the renderer.
var Codecs = []string{"h264", "h265", "vp8", "vp9", "mp3", "aac", "wav", "prores", "h264-mkv", "gif"}

// Retention windows matching the bucket lifecycle rules, in days.
var Retention = map[string]int{
	"1-day":   1,
	"3-days":  3,
	"7-days":  7,
	"30-days": 30,
}

// Normalize fills defaults and validates the request in place.
//
// An absent InputProps becomes an empty object. A present one must be a
// JSON object.
func (r *Request) Normalize(defaultComposition, defaultCodec string) error {
	r.Composition = strings.TrimSpace(r.Composition)
	if r.Composition == "" {
		r.Composition = defaultComposition
	}
	if r.Composition == "" {
		return &ValidationError{Field: "composition", Message: "is required"}
	}

	trimmed := bytes.TrimSpace(r.InputProps)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		r.InputProps = json.RawMessage("{}")
	} else {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return &ValidationError{Field: "inputProps", Message: "must be a JSON object"}
		}
		r.InputProps = json.RawMessage(trimmed)
	}

	r.Codec = strings.ToLower(strings.TrimSpace(r.Codec))
	if r.Codec == "" {
		r.Codec = defaultCodec
	}
	if r.Codec != "" && !slices.Contains(Codecs, r.Codec) {
		return &ValidationError{Field: "codec", Message: "unsupported codec " + r.Codec}
	}

	if r.DeleteAfter != "" {
		if _, ok := Retention[r.DeleteAfter]; !ok {
			return &ValidationError{Field: "deleteAfter", Message: "must be one of 1-day, 3-days, 7-days, 30-days"}
		}
	}

	if r.FramesPerLambda < 0 {
		return &ValidationError{Field: "framesPerLambda", Message: "must not be negative"}
	}
	return nil
}
