package mongodb

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"

	sha256 "github.com/minio/sha256-simd"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	mgridfs "go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/kbukum/gridstore/gridfs"
)

// Bucket is a gridfs.Bucket over a MongoDB GridFS bucket.
type Bucket struct {
	db   *Database
	name string
	b    *mgridfs.Bucket
}

var _ gridfs.Bucket = (*Bucket)(nil)

func (b *Bucket) Name() string { return b.name }

// OpenUploadStream opens a GridFS upload stream. A nil id becomes a new
// ObjectID. The context deadline, if any, bounds every chunk write.
func (b *Bucket) OpenUploadStream(ctx context.Context, opts gridfs.UploadOptions) (gridfs.UploadStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if dl, ok := ctx.Deadline(); ok {
		if err := b.b.SetWriteDeadline(dl); err != nil {
			return nil, &gridfs.StoreError{Op: "open", Err: err}
		}
	}

	id := opts.ID
	if id == nil {
		id = primitive.NewObjectID()
	}
	uo := options.GridFSUpload()
	if opts.ChunkSize > 0 {
		uo.SetChunkSizeBytes(opts.ChunkSize)
	}
	if opts.Metadata != nil {
		uo.SetMetadata(opts.Metadata)
	}

	us, err := b.b.OpenUploadStreamWithID(id, opts.Filename, uo)
	if err != nil {
		return nil, &gridfs.StoreError{Op: "open", Err: err}
	}
	return &Stream{
		bucket: b,
		us:     us,
		id:     id,
		opts:   opts,
		hash:   sha256.New(),
	}, nil
}

// Delete removes the files document and its chunks.
func (b *Bucket) Delete(ctx context.Context, id any) error {
	if err := b.b.DeleteContext(ctx, id); err != nil {
		return &gridfs.StoreError{Op: "delete", Err: err}
	}
	return nil
}

// Stream writes one file through a GridFS upload stream.
type Stream struct {
	bucket   *Bucket
	us       *mgridfs.UploadStream
	id       any
	opts     gridfs.UploadOptions
	hash     hash.Hash
	size     int64
	finished bool
}

var _ gridfs.UploadStream = (*Stream)(nil)

func (s *Stream) FileID() any { return s.id }
func (s *Stream) Size() int64 { return s.size }

func (s *Stream) Write(p []byte) (int, error) {
	n, err := s.us.Write(p)
	s.hash.Write(p[:n])
	s.size += int64(n)
	if err != nil {
		return n, &gridfs.StoreError{Op: "write", Err: err}
	}
	return n, nil
}

// Close flushes the last chunk, writes the files document and then sets
// the final filename, content type, metadata and content hash on it.
func (s *Stream) Close(ctx context.Context, final *gridfs.UploadOptions) error {
	if s.finished {
		return nil
	}
	s.finished = true

	if err := s.us.Close(); err != nil {
		_ = s.us.Abort()
		return &gridfs.StoreError{Op: "close", Err: err}
	}

	opts := s.opts
	if final != nil {
		opts.Filename = final.Filename
		opts.ContentType = final.ContentType
		opts.Metadata = final.Metadata
	}
	set := bson.M{"filename": opts.Filename}
	if opts.ContentType != "" {
		set["contentType"] = opts.ContentType
	}
	if opts.Metadata != nil {
		set["metadata"] = opts.Metadata
	}

	files := s.bucket.b.GetFilesCollection()
	sum := hex.EncodeToString(s.hash.Sum(nil))
	if s.bucket.db.settings.unique {
		if err := s.bucket.db.ensureIndex(ctx, files); err != nil {
			s.removeOrphan(ctx)
			return &gridfs.StoreError{Op: "index", Err: err}
		}
		set[FieldContentHash] = sum
	}

	_, err := files.UpdateOne(ctx, bson.M{"_id": s.id}, bson.M{"$set": set})
	switch {
	case err == nil:
		return nil
	case mongo.IsDuplicateKeyError(err):
		s.removeOrphan(ctx)
		return &gridfs.DuplicateKeyError{
			Collection: s.bucket.db.Name() + "." + files.Name(),
			Index:      IndexContentHash,
			Key:        fmt.Sprintf("{ %s: %q }", FieldContentHash, sum),
			Cause:      err,
		}
	default:
		s.removeOrphan(ctx)
		return &gridfs.StoreError{Op: "close", Err: err}
	}
}

// removeOrphan deletes a files document whose finalization failed.
func (s *Stream) removeOrphan(ctx context.Context) {
	err := s.bucket.b.DeleteContext(context.WithoutCancel(ctx), s.id)
	if err != nil && !errors.Is(err, mgridfs.ErrFileNotFound) {
		s.bucket.db.settings.log.Warn("Failed to remove orphaned file", map[string]interface{}{
			"id":    fmt.Sprint(s.id),
			"error": err.Error(),
		})
	}
}

// Abort removes the chunks written so far. It is a no-op after Close.
func (s *Stream) Abort(_ context.Context) error {
	if s.finished {
		return nil
	}
	s.finished = true
	if err := s.us.Abort(); err != nil && !errors.Is(err, mgridfs.ErrStreamClosed) {
		return &gridfs.StoreError{Op: "abort", Err: err}
	}
	return nil
}
