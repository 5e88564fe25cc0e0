package relay

import (
	"encoding/json"

	"github.com/loopers/commerce-core/internal/domain"
)

func marshalEnvelope(e domain.Envelope) ([]byte, error) {
	return json.Marshal(e)
}
