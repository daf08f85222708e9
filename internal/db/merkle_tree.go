package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/stakebonds/bonds-settlement/internal/db/model"
	"github.com/stakebonds/bonds-settlement/internal/types"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func (db *Database) SaveMerkleTrees(ctx context.Context, trees *types.MerkleTreeCollection) error {
	doc := model.FromMerkleTreeCollection(trees)
	opts := options.Replace().SetUpsert(true)
	_, err := db.collection(model.MerkleTreesCollection).
		ReplaceOne(ctx, bson.M{"_id": doc.Epoch}, doc, opts)
	return err
}

func (db *Database) GetMerkleTrees(ctx context.Context, epoch uint64) (*types.MerkleTreeCollection, error) {
	var doc model.MerkleTreesDocument
	err := db.collection(model.MerkleTreesCollection).
		FindOne(ctx, bson.M{"_id": epoch}).
		Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, &NotFoundError{
				Collection: model.MerkleTreesCollection,
				Key:        fmt.Sprint(epoch),
				Message:    "merkle trees not found for epoch",
			}
		}
		return nil, err
	}

	return doc.ToMerkleTreeCollection()
}

func (db *Database) FindMerkleTreeEpochs(ctx context.Context, fromEpoch uint64) ([]uint64, error) {
	filter := bson.M{"_id": bson.M{"$gte": fromEpoch}}
	opts := options.Find().
		SetSort(bson.D{{Key: "_id", Value: 1}}).
		SetProjection(bson.M{"_id": 1})
	cursor, err := db.collection(model.MerkleTreesCollection).Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var epochs []uint64
	for cursor.Next(ctx) {
		var doc struct {
			Epoch uint64 `bson:"_id"`
		}
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		epochs = append(epochs, doc.Epoch)
	}
	return epochs, cursor.Err()
}
