// File: internal/pipeline/enrich.go
package pipeline

import (
	"sort"

	"github.com/chainsight-io/signal-engine/internal/entity"
	"github.com/chainsight-io/signal-engine/internal/models"
)

// resolveFlows turns one block's transactions into per-entity inflow and
// outflow aggregates. Unknown addresses are skipped; they carry no entity
// signal.
func resolveFlows(resolver *entity.Resolver, facts *models.BlockFacts) []*models.EntityFlow {
	type key struct {
		name string
		flow models.FlowType
	}
	grouped := make(map[key]*models.EntityFlow)

	add := func(rec *models.EntityRecord, flow models.FlowType, amount float64, txID string) {
		if rec.IsUnknown() {
			return
		}
		k := key{name: rec.EntityName, flow: flow}
		ef, ok := grouped[k]
		if !ok {
			ef = &models.EntityFlow{Entity: rec, FlowType: flow}
			grouped[k] = ef
		}
		ef.Amount += amount
		if len(ef.TxIDs) == 0 || ef.TxIDs[len(ef.TxIDs)-1] != txID {
			ef.TxIDs = append(ef.TxIDs, txID)
		}
	}

	for _, tx := range facts.Transactions {
		// Outputs to an entity's address are inflows; spent inputs from
		// an entity's address are outflows
		for _, out := range tx.Outputs {
			add(resolver.Resolve(out.Address), models.FlowInflow, out.Amount, tx.TxID)
		}
		for _, in := range tx.Inputs {
			add(resolver.Resolve(in.Address), models.FlowOutflow, in.Amount, tx.TxID)
		}
	}

	flows := make([]*models.EntityFlow, 0, len(grouped))
	for _, ef := range grouped {
		flows = append(flows, ef)
	}
	sort.Slice(flows, func(i, j int) bool {
		if flows[i].Entity.EntityName != flows[j].Entity.EntityName {
			return flows[i].Entity.EntityName < flows[j].Entity.EntityName
		}
		return flows[i].FlowType < flows[j].FlowType
	})
	return flows
}
