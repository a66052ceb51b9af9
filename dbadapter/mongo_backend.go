package dbadapter

import (
	"context"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// mongoBackend is the real-driver backend for mongodb:// connections.
// Query understands a tiny subset of SQL-shaped keywords so the same
// first-keyword dispatch used by the simulated and SQL backends still
// applies: "SELECT <collection>" lists documents, "INSERT <collection>"
// inserts an empty document, matching the shape of the simulated backend's
// synthetic behaviour rather than accepting real Mongo query documents.
type mongoBackend struct {
	client   *mongo.Client
	database string
}

func (b *mongoBackend) Close() error {
	return b.client.Disconnect(context.Background())
}

func (b *mongoBackend) Query(ctx context.Context, query string) (rowsAffected, rowsReturned int64, resultSet []map[string]interface{}, err error) {
	parts := strings.Fields(query)
	if len(parts) < 2 {
		return 0, 0, nil, fmt.Errorf("dbadapter: mongo query must be \"<KEYWORD> <collection>\"")
	}
	keyword := strings.ToUpper(parts[0])
	collection := b.client.Database(b.database).Collection(parts[1])

	switch keyword {
	case "SELECT":
		cursor, err := collection.Find(ctx, bson.D{})
		if err != nil {
			return 0, 0, nil, err
		}
		defer cursor.Close(ctx)
		var docs []bson.M
		if err := cursor.All(ctx, &docs); err != nil {
			return 0, 0, nil, err
		}
		for _, d := range docs {
			resultSet = append(resultSet, map[string]interface{}(d))
		}
		return 0, int64(len(resultSet)), resultSet, nil
	case "INSERT":
		res, err := collection.InsertOne(ctx, bson.D{})
		if err != nil {
			return 0, 0, nil, err
		}
		_ = res
		return 1, 0, nil, nil
	case "DELETE":
		res, err := collection.DeleteMany(ctx, bson.D{})
		if err != nil {
			return 0, 0, nil, err
		}
		return res.DeletedCount, 0, nil, nil
	default:
		return 0, 0, nil, fmt.Errorf("dbadapter: unsupported mongo keyword %q", keyword)
	}
}
