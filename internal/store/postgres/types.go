package postgres

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	apiresource "k8s.io/apimachinery/pkg/api/resource"

	"github.com/lablup/baimgr-core/internal/model"
	"github.com/lablup/baimgr-core/internal/resource"
)

// slotJSON adapts resource.Slot to sql.Scanner/driver.Valuer for the
// resource_slots JSON columns, following the teacher's PluginManifest
// Scan/Value pattern.
type slotJSON resource.Slot

func (s *slotJSON) Scan(value interface{}) error {
	if value == nil {
		*s = slotJSON{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("resource slot column is not []byte")
	}
	raw := map[string]string{}
	if err := json.Unmarshal(bytes, &raw); err != nil {
		return fmt.Errorf("unmarshal resource slot: %w", err)
	}
	out := make(slotJSON, len(raw))
	for k, v := range raw {
		q, err := apiresource.ParseQuantity(v)
		if err != nil {
			return fmt.Errorf("parse quantity %s=%s: %w", k, v, err)
		}
		out[k] = q
	}
	*s = out
	return nil
}

func (s slotJSON) Value() (driver.Value, error) {
	raw := make(map[string]string, len(s))
	for k, v := range s {
		raw[k] = v.String()
	}
	return json.Marshal(raw)
}

// statusDataJSON adapts map[string]any to the status_data JSON column.
type statusDataJSON map[string]any

func (d *statusDataJSON) Scan(value interface{}) error {
	if value == nil {
		*d = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("status_data column is not []byte")
	}
	return json.Unmarshal(bytes, d)
}

func (d statusDataJSON) Value() (driver.Value, error) {
	if d == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(d)
}

// statusHistoryJSON adapts []model.StatusHistoryEntry to the status_history
// JSON column.
type statusHistoryJSON []model.StatusHistoryEntry

func (h *statusHistoryJSON) Scan(value interface{}) error {
	if value == nil {
		*h = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("status_history column is not []byte")
	}
	return json.Unmarshal(bytes, h)
}

func (h statusHistoryJSON) Value() (driver.Value, error) {
	return json.Marshal([]model.StatusHistoryEntry(h))
}
