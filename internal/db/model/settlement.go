package model

import (
	"fmt"
	"time"

	"github.com/stakebonds/bonds-settlement/internal/types"
)

const SettlementSummaryCollection = "settlement_summaries"

// SettlementSummaryDocument keeps the aggregates of the settlements generated
// for one epoch and reason.
type SettlementSummaryDocument struct {
	ID           string    `bson:"_id"`
	Epoch        uint64    `bson:"epoch"`
	Slot         uint64    `bson:"slot"`
	Reason       string    `bson:"reason"`
	Settlements  int       `bson:"settlements"`
	ClaimsCount  int       `bson:"claims_count"`
	ClaimsAmount uint64    `bson:"claims_amount"`
	UpdatedAt    time.Time `bson:"updated_at"`
}

func SettlementSummaryID(epoch uint64, reason types.SettlementReason) string {
	return fmt.Sprintf("%d-%s", epoch, reason)
}

func FromSettlementCollection(collection *types.SettlementCollection, reason types.SettlementReason) *SettlementSummaryDocument {
	doc := &SettlementSummaryDocument{
		ID:        SettlementSummaryID(collection.Epoch, reason),
		Epoch:     collection.Epoch,
		Slot:      collection.Slot,
		Reason:    reason.String(),
		UpdatedAt: time.Now().UTC(),
	}
	for _, settlement := range collection.Settlements {
		if settlement.Reason != reason {
			continue
		}
		doc.Settlements++
		doc.ClaimsCount += settlement.ClaimsCount
		doc.ClaimsAmount += settlement.ClaimsAmount
	}
	return doc
}
