// Package ledger implements the composite order-status string: the
// order-wide lifecycle step plus a per-item status overlay, encoded as
//
//	<step>#<RFC3339 timestamp>#<json overlay>
//
// The overlay segment is JSON and may itself contain '#', so decoding
// splits on the first two separators only. Corrupt input never fails a
// status update: bad segments are replaced with defaults.
package ledger

import (
	"encoding/json"
	"strings"
	"time"

	"bazaar/internal/model"
	"bazaar/pkg/log"
)

// Record is the decoded form of an order's status ledger
type Record struct {
	Step           string            `json:"step"`
	TransitionedAt time.Time         `json:"transitioned_at"`
	Overlay        map[string]string `json:"overlay"`
}

// Decode parses a raw ledger string. It never fails: absent input yields
// the review step with an empty overlay, a legacy single-segment value is
// treated as a bare step, and a corrupt overlay decodes as empty.
func Decode(raw string) Record {
	if raw == "" {
		return Record{
			Step:           model.StepReview,
			TransitionedAt: time.Now().UTC().Truncate(time.Second),
			Overlay:        map[string]string{},
		}
	}

	parts := strings.SplitN(raw, "#", 3)
	if len(parts) < 2 {
		// Legacy value: the whole string is the step
		return Record{
			Step:           raw,
			TransitionedAt: time.Now().UTC().Truncate(time.Second),
			Overlay:        map[string]string{},
		}
	}

	rec := Record{
		Step:    parts[0],
		Overlay: map[string]string{},
	}

	ts, err := time.Parse(time.RFC3339, parts[1])
	if err != nil {
		rec.TransitionedAt = time.Now().UTC().Truncate(time.Second)
	} else {
		rec.TransitionedAt = ts
	}

	if len(parts) == 3 && parts[2] != "" {
		var overlay map[string]string
		if err := json.Unmarshal([]byte(parts[2]), &overlay); err != nil {
			log.WithFields(map[string]interface{}{
				"segment": parts[2],
				"error":   err.Error(),
			}).Warn("Corrupt ledger overlay, substituting empty")
		} else if overlay != nil {
			rec.Overlay = overlay
		}
	}

	return rec
}

// Encode serializes a record back into the composite string
func Encode(rec Record) string {
	overlay := rec.Overlay
	if overlay == nil {
		overlay = map[string]string{}
	}
	data, err := json.Marshal(overlay)
	if err != nil {
		// map[string]string cannot fail to marshal; guard anyway
		data = []byte("{}")
	}

	var b strings.Builder
	b.WriteString(rec.Step)
	b.WriteByte('#')
	b.WriteString(rec.TransitionedAt.Format(time.RFC3339))
	b.WriteByte('#')
	b.Write(data)
	return b.String()
}

// UpdateItemStatus sets the overlay entry for a product and re-encodes.
// The step and timestamp are carried over untouched: a per-item update
// never moves the order-wide stage.
func UpdateItemStatus(raw, productKey, newStatus string) string {
	rec := Decode(raw)
	rec.Overlay[productKey] = newStatus
	return Encode(rec)
}

// SetStep replaces the order-wide step with a fresh timestamp, keeping
// the overlay intact.
func SetStep(raw, newStep string) string {
	rec := Decode(raw)
	rec.Step = newStep
	rec.TransitionedAt = time.Now().UTC().Truncate(time.Second)
	return Encode(rec)
}
