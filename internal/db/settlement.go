package db

import (
	"context"

	"github.com/stakebonds/bonds-settlement/internal/db/model"
	"github.com/stakebonds/bonds-settlement/internal/types"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func (db *Database) SaveSettlementSummary(
	ctx context.Context, collection *types.SettlementCollection, reason types.SettlementReason,
) error {
	doc := model.FromSettlementCollection(collection, reason)
	opts := options.Replace().SetUpsert(true)
	_, err := db.collection(model.SettlementSummaryCollection).
		ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, opts)
	return err
}
