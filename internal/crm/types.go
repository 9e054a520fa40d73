package crm

import (
	"bytes"
	"encoding/json"
)

// Payload is the body of one contract push.
type Payload struct {
	PropertyID   string       `json:"property_id"`
	ContractData ContractData `json:"contract_data"`
	Metadata     Metadata     `json:"metadata"`
}

// ContractData carries the mapped contract fields. Values keep the type they
// had in the stored record (string or number) and are null when absent.
type ContractData struct {
	Huurprijs    any `json:"huurprijs"`
	Adres        any `json:"adres"`
	Type         any `json:"type"`
	Oppervlakte  any `json:"oppervlakte"`
	Verhuurder   any `json:"verhuurder"`
	Huurder      any `json:"huurder"`
	Ingangsdatum any `json:"ingangsdatum"`
	Einddatum    any `json:"einddatum"`
}

// Metadata describes where the pushed contract came from.
type Metadata struct {
	Filename   string   `json:"filename"`
	Confidence *float64 `json:"confidence"`
	Processed  string   `json:"processed"`
	Source     string   `json:"source"`
}

// Receipt is the CRM's acknowledgement of an accepted push.
type Receipt struct {
	ID string `json:"id"`
}

// UnmarshalJSON accepts the id as either a JSON string or number.
func (r *Receipt) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	id := bytes.TrimSpace(raw.ID)
	switch {
	case len(id) == 0 || string(id) == "null":
		r.ID = ""
	case id[0] == '"':
		return json.Unmarshal(id, &r.ID)
	default:
		var n json.Number
		if err := json.Unmarshal(id, &n); err != nil {
			return err
		}
		r.ID = n.String()
	}
	return nil
}
