package db

import (
	"context"
	"errors"

	"github.com/stakebonds/bonds-settlement/internal/db/model"
	"github.com/stakebonds/bonds-settlement/internal/types"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func (db *Database) SaveRunReport(ctx context.Context, report *types.RunReport) error {
	_, err := db.collection(model.RunReportCollection).
		InsertOne(ctx, model.FromRunReport(report))
	if err != nil {
		var writeErr mongo.WriteException
		if errors.As(err, &writeErr) {
			for _, e := range writeErr.WriteErrors {
				if mongo.IsDuplicateKeyError(e) {
					return &DuplicateKeyError{
						Collection: model.RunReportCollection,
						Key:        report.ID,
						Message:    "run report already exists",
					}
				}
			}
		}
		return err
	}

	return nil
}

func (db *Database) GetRunReports(ctx context.Context, epoch uint64) ([]*types.RunReport, error) {
	opts := options.Find().SetSort(bson.D{{Key: "started_at", Value: -1}})
	cursor, err := db.collection(model.RunReportCollection).
		Find(ctx, bson.M{"epoch": epoch}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []model.RunReportDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	reports := make([]*types.RunReport, 0, len(docs))
	for i := range docs {
		reports = append(reports, docs[i].ToRunReport())
	}
	return reports, nil
}
