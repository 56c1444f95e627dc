// Package wholejson provides the shared parsing helper for the
// "whole-file JSON" adapter family (spec.md §4.2): Continue.dev,
// Gemini CLI, Amp and the Cline/Roo family all write a single JSON
// document per session containing an ordered message array, differing
// only in field names. Re-parsing the whole file on every ingest is
// deliberate (spec.md §9 "Stateless adapters + stateful engine");
// message-level dedup in the store makes the repeat work cheap.
package wholejson

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/nstogner/lore/internal/model"
)

// FieldMap names the JSON paths a whole-file adapter's document uses,
// relative to each element of ArrayPath.
type FieldMap struct {
	ArrayPath      string // path to the message array within the document
	RoleField      string
	ContentField   string
	TimestampField string // optional; empty means "not present"
	RoleValues     map[string]model.Role
}

// ParseMessages extracts canonical messages from a whole-file JSON
// document per fm. Malformed or empty entries are skipped, not fatal.
func ParseMessages(doc []byte, fm FieldMap) ([]model.Message, error) {
	if !gjson.ValidBytes(doc) {
		return nil, fmt.Errorf("invalid json document")
	}
	root := gjson.ParseBytes(doc)
	arr := root.Get(fm.ArrayPath)
	if !arr.IsArray() {
		return nil, fmt.Errorf("field %q is not an array", fm.ArrayPath)
	}

	var messages []model.Message
	idx := 0
	for _, item := range arr.Array() {
		text := strings.TrimSpace(item.Get(fm.ContentField).String())
		if text == "" {
			continue
		}
		role, ok := fm.RoleValues[item.Get(fm.RoleField).String()]
		if !ok {
			role = model.RoleAssistant
		}
		ts := time.Now().UTC()
		if fm.TimestampField != "" {
			if raw := item.Get(fm.TimestampField); raw.Exists() {
				if t, ok := parseAnyTimestamp(raw); ok {
					ts = t
				}
			}
		}
		messages = append(messages, model.Message{
			ID:        uuid.New().String(),
			Index:     idx,
			Timestamp: ts,
			Role:      role,
			Content:   text,
		})
		idx++
	}
	return messages, nil
}

func parseAnyTimestamp(v gjson.Result) (time.Time, bool) {
	if v.Type == gjson.Number {
		// Disambiguate seconds vs milliseconds by magnitude.
		n := v.Int()
		if n > 1_000_000_000_000 {
			return time.UnixMilli(n).UTC(), true
		}
		return time.Unix(n, 0).UTC(), true
	}
	if t, err := time.Parse(time.RFC3339Nano, v.String()); err == nil {
		return t, true
	}
	return time.Time{}, false
}
