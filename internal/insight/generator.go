// File: internal/insight/generator.go
package insight

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/chainsight-io/signal-engine/internal/models"
	"github.com/chainsight-io/signal-engine/pkg/utils"
)

// promptTemplates hold the per-type framing handed to the text provider.
// Each prompt asks for the same JSON shape so validation stays uniform.
var promptTemplates = map[models.SignalType]string{
	models.SignalTypeMempool:    "Bitcoin mempool fee pressure changed sharply. Explain what the fee spike means for users and miners.",
	models.SignalTypeExchange:   "A statistically unusual exchange flow was detected on-chain. Explain the likely market interpretation.",
	models.SignalTypeMiner:      "A mining pool's treasury balance moved materially. Explain what pool treasury changes can signal.",
	models.SignalTypeWhale:      "A large holder moved or accumulated a significant Bitcoin position. Explain the significance.",
	models.SignalTypeTreasury:   "A corporate Bitcoin treasury showed unusual flow relative to its known holdings. Explain the significance.",
	models.SignalTypePredictive: "A forward-looking on-chain indicator produced a forecast. Explain what it predicts and how reliable it is.",
}

// Generator turns groups of unprocessed signals into insights
type Generator struct {
	provider Provider
}

// NewGenerator creates an insight generator over a text provider
func NewGenerator(provider Provider) *Generator {
	return &Generator{provider: provider}
}

// ProviderName reports the underlying provider
func (g *Generator) ProviderName() string {
	return g.provider.Name()
}

// Generate produces one insight per signal in the group. The group shares
// a single provider call; each resulting insight carries the shared text
// and its own signal's evidence.
func (g *Generator) Generate(ctx context.Context, signalType models.SignalType, blockHeight uint64, signals []*models.Signal) ([]*models.Insight, error) {
	if len(signals) == 0 {
		return nil, nil
	}

	req := &Request{
		SignalType:  signalType,
		BlockHeight: blockHeight,
		Signals:     signals,
		Prompt:      buildPrompt(signalType, blockHeight, signals),
	}

	response, err := g.provider.Generate(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := validateResponse(response); err != nil {
		return nil, err
	}

	now := time.Now()
	insights := make([]*models.Insight, 0, len(signals))
	for _, signal := range signals {
		insights = append(insights, &models.Insight{
			ID:         uuid.NewString(),
			SignalID:   signal.ID,
			Category:   signalType,
			Headline:   response.Headline,
			Summary:    response.Summary + " " + response.ConfidenceExplanation,
			Confidence: signal.Confidence,
			Evidence:   extractEvidence(signal),
			CreatedAt:  now,
		})
	}
	return insights, nil
}

// buildPrompt renders the provider instruction for a signal group
func buildPrompt(signalType models.SignalType, blockHeight uint64, signals []*models.Signal) string {
	var b strings.Builder

	framing, ok := promptTemplates[signalType]
	if !ok {
		framing = "An on-chain signal was detected. Explain its significance."
	}

	b.WriteString(framing)
	b.WriteString(fmt.Sprintf("\n\nBlock height: %d\nSignals in group: %d\n\n", blockHeight, len(signals)))

	for i, signal := range signals {
		b.WriteString(fmt.Sprintf("Signal %d (confidence %.2f):\n", i+1, signal.Confidence))
		keys := make([]string, 0, len(signal.Metadata))
		for k := range signal.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			b.WriteString(fmt.Sprintf("  %s: %v\n", k, signal.Metadata[k]))
		}
	}

	b.WriteString("\nRespond with a JSON object only:\n")
	b.WriteString(`{"headline": "one line, under 90 characters", "summary": "2-3 sentences for a market analyst", "confidence_explanation": "one sentence on why the confidence score is what it is"}`)
	return b.String()
}

// validateResponse enforces the required response shape. A response
// missing any field is a provider failure; the signals stay unprocessed
// and are retried next poll cycle.
func validateResponse(response *Response) error {
	missing := make([]string, 0, 3)
	if strings.TrimSpace(response.Headline) == "" {
		missing = append(missing, "headline")
	}
	if strings.TrimSpace(response.Summary) == "" {
		missing = append(missing, "summary")
	}
	if strings.TrimSpace(response.ConfidenceExplanation) == "" {
		missing = append(missing, "confidence_explanation")
	}
	if len(missing) > 0 {
		return utils.NewAppError(utils.ErrCodeProvider,
			"Provider response is missing required fields",
			strings.Join(missing, ", "))
	}
	return nil
}

// extractEvidence collects the block height and any transaction ids the
// signal's metadata carries
func extractEvidence(signal *models.Signal) models.Evidence {
	evidence := models.Evidence{
		BlockHeights: []uint64{signal.BlockHeight},
	}
	raw, ok := signal.Metadata["tx_ids"]
	if !ok {
		return evidence
	}
	switch v := raw.(type) {
	case []string:
		evidence.TxIDs = append(evidence.TxIDs, v...)
	case []interface{}:
		// Metadata round-tripped through JSON storage decodes as []interface{}
		for _, item := range v {
			if txID, ok := item.(string); ok {
				evidence.TxIDs = append(evidence.TxIDs, txID)
			}
		}
	}
	return evidence
}
