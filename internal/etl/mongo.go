package etl

import (
	"bytes"
	"context"

	"github.com/BartekS5/movielens-etl/pkg/database"
	"github.com/BartekS5/movielens-etl/pkg/logger"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// GridFSStore keeps source files in a MongoDB GridFS bucket, one file per
// object key. Reads return the newest revision of a key.
type GridFSStore struct {
	Client *mongo.Client
	Bucket *gridfs.Bucket
	name   string
}

func NewGridFSStore(client *mongo.Client, database, bucket string) (*GridFSStore, error) {
	b, err := gridfs.NewBucket(client.Database(database), options.GridFSBucket().SetName(bucket))
	if err != nil {
		return nil, errors.Wrapf(err, "opening GridFS bucket %s.%s", database, bucket)
	}
	return &GridFSStore{Client: client, Bucket: b, name: database + "." + bucket}, nil
}

func (g *GridFSStore) GetObject(ctx context.Context, key string) ([]byte, error) {
	if dl, ok := ctx.Deadline(); ok {
		if err := g.Bucket.SetReadDeadline(dl); err != nil {
			return nil, errors.Wrap(err, "setting GridFS read deadline")
		}
	}

	var buf bytes.Buffer
	if _, err := g.Bucket.DownloadToStreamByName(key, &buf); err != nil {
		if errors.Is(err, gridfs.ErrFileNotFound) {
			return nil, errors.Wrapf(ErrObjectNotFound, "gridfs://%s/%s", g.name, key)
		}
		return nil, errors.Wrapf(err, "downloading gridfs://%s/%s", g.name, key)
	}
	logger.Debugf("Fetched %d bytes from gridfs://%s/%s", buf.Len(), g.name, key)
	return buf.Bytes(), nil
}

func (g *GridFSStore) CheckConnection(ctx context.Context) error {
	return database.PingMongo(ctx, g.Client)
}

func (g *GridFSStore) PutObject(ctx context.Context, key string, data []byte) error {
	if dl, ok := ctx.Deadline(); ok {
		if err := g.Bucket.SetWriteDeadline(dl); err != nil {
			return errors.Wrap(err, "setting GridFS write deadline")
		}
	}
	if _, err := g.Bucket.UploadFromStream(key, bytes.NewReader(data)); err != nil {
		return errors.Wrapf(err, "uploading gridfs://%s/%s", g.name, key)
	}
	return nil
}
