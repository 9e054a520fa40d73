package push

import (
	"github.com/projectvak/contracthub/internal/crm"
	"github.com/projectvak/contracthub/internal/matcher"
	"github.com/projectvak/contracthub/internal/models"
	"github.com/projectvak/contracthub/internal/normalize"
)

// Source paths of the pushed contract fields.
var (
	pathHuurprijs    = models.MustFieldPath("financieel.huurprijs")
	pathType         = models.MustFieldPath("pand.type")
	pathOppervlakte  = models.MustFieldPath("pand.oppervlakte")
	pathVerhuurder   = models.MustFieldPath("partijen.verhuurder")
	pathHuurder      = models.MustFieldPath("partijen.huurder")
	pathIngangsdatum = models.MustFieldPath("periodes.ingangsdatum")
	pathEinddatum    = models.MustFieldPath("periodes.einddatum")
	pathPropertyID   = models.MustFieldPath("pand.whise_id")
)

// BuildPayload maps a record onto the CRM wire shape. The property id is
// the explicit CRM id when present, else the address slug, else the
// filename slug.
func BuildPayload(rec *models.ContractRecord, source string) crm.Payload {
	doc := rec.ContractData
	address := matcher.Address(rec)

	propertyID, ok := doc.String(pathPropertyID)
	if !ok {
		propertyID = normalize.Normalize(address)
	}
	if propertyID == "" {
		propertyID = normalize.SlugFromFilename(rec.Filename)
	}

	var adres any
	if address != "" {
		adres = address
	}

	return crm.Payload{
		PropertyID: propertyID,
		ContractData: crm.ContractData{
			Huurprijs:    value(doc, pathHuurprijs),
			Adres:        adres,
			Type:         value(doc, pathType),
			Oppervlakte:  value(doc, pathOppervlakte),
			Verhuurder:   party(doc, pathVerhuurder),
			Huurder:      party(doc, pathHuurder),
			Ingangsdatum: value(doc, pathIngangsdatum),
			Einddatum:    value(doc, pathEinddatum),
		},
		Metadata: crm.Metadata{
			Filename:   rec.Filename,
			Confidence: rec.Confidence,
			Processed:  rec.Processed,
			Source:     source,
		},
	}
}

func value(doc models.Document, p models.FieldPath) any {
	v, ok := doc.Lookup(p)
	if !ok {
		return nil
	}
	return v
}

// party flattens a party object to its name.
func party(doc models.Document, p models.FieldPath) any {
	v := value(doc, p)
	if obj, ok := v.(map[string]any); ok {
		if name, ok := obj["naam"]; ok {
			return name
		}
		if name, ok := obj["name"]; ok {
			return name
		}
	}
	return v
}
