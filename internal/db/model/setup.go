package model

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/stakebonds/bonds-settlement/internal/config"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	setupTimeout = 30 * time.Second
	// mongo error code of CreateCollection on an existing collection
	namespaceExistsCode = 48
)

type index struct {
	Keys   bson.D
	Unique bool
}

var collections = map[string][]index{
	MerkleTreesCollection: nil,
	SettlementSummaryCollection: {
		{Keys: bson.D{{Key: "epoch", Value: -1}}},
	},
	RunReportCollection: {
		{Keys: bson.D{{Key: "epoch", Value: -1}, {Key: "started_at", Value: -1}}},
	},
}

// Setup creates the collections and indexes of the settlement database.
// Existing collections and indexes are left untouched.
func Setup(ctx context.Context, cfg *config.DbConfig) error {
	ctx, cancel := context.WithTimeout(ctx, setupTimeout)
	defer cancel()

	credential := options.Credential{
		Username: cfg.Username,
		Password: cfg.Password,
	}
	clientOps := options.Client().ApplyURI(cfg.Address).SetAuth(credential)
	client, err := mongo.Connect(ctx, clientOps)
	if err != nil {
		return err
	}
	defer func() {
		if err := client.Disconnect(context.Background()); err != nil {
			log.Error().Err(err).Msg("failed to disconnect setup client")
		}
	}()

	database := client.Database(cfg.DbName)
	for collection, indexes := range collections {
		if err := createCollection(ctx, database, collection); err != nil {
			return err
		}
		for _, idx := range indexes {
			if err := createIndex(ctx, database, collection, idx); err != nil {
				return err
			}
		}
	}

	log.Ctx(ctx).Info().Msg("database setup completed")
	return nil
}

func createCollection(ctx context.Context, database *mongo.Database, name string) error {
	err := database.CreateCollection(ctx, name)
	var cmdErr mongo.CommandError
	if err == nil || (errors.As(err, &cmdErr) && cmdErr.Code == namespaceExistsCode) {
		return nil
	}
	return fmt.Errorf("failed to create collection %s: %w", name, err)
}

func createIndex(ctx context.Context, database *mongo.Database, collection string, idx index) error {
	model := mongo.IndexModel{
		Keys:    idx.Keys,
		Options: options.Index().SetUnique(idx.Unique),
	}
	if _, err := database.Collection(collection).Indexes().CreateOne(ctx, model); err != nil {
		return fmt.Errorf("failed to create index on %s: %w", collection, err)
	}
	return nil
}
