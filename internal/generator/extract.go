package generator

import (
	"encoding/json"
	"strings"

	"github.com/vaisu-bhut/GeniQ/pkg/contracts"
	"github.com/vaisu-bhut/GeniQ/pkg/models"
)

// ExtractItems pulls the JSON array between the first '[' and the last ']'
// of raw model output. Non-object elements are skipped, so the result may be
// shorter than what was asked for. Unparsable text yields a
// MalformedGeneratorOutput error.
func ExtractItems(raw string) ([]models.Item, error) {
	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start < 0 || end <= start {
		return nil, contracts.NewError(contracts.KindMalformedGeneratorOutput, "no JSON array in generator output", nil)
	}

	var elems []json.RawMessage
	if err := json.Unmarshal([]byte(raw[start:end+1]), &elems); err != nil {
		return nil, contracts.NewError(contracts.KindMalformedGeneratorOutput, "invalid JSON array in generator output", err)
	}

	items := make([]models.Item, 0, len(elems))
	for _, e := range elems {
		var obj map[string]interface{}
		if err := json.Unmarshal(e, &obj); err != nil || obj == nil {
			continue
		}
		items = append(items, models.Item(obj))
	}
	return items, nil
}
