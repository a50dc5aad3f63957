package httpupload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/kbukum/gridstore/errors"
	"github.com/kbukum/gridstore/gridfs"
	"github.com/kbukum/gridstore/logger"
	"github.com/kbukum/gridstore/resilience"
	"github.com/kbukum/gridstore/server"
)

// ContextKey is the gin context key holding the request's *Result.
const ContextKey = "httpupload.result"

// Handler stores and removes files. *gridfs.Storage implements it.
type Handler interface {
	HandleFile(ctx context.Context, req *http.Request, part *gridfs.Part, src io.Reader) (*gridfs.File, error)
	RemoveFile(ctx context.Context, file *gridfs.File) error
}

var _ Handler = (*gridfs.Storage)(nil)

// Result is what a request stored.
type Result struct {
	Files  []*gridfs.File      `json:"files"`
	Fields map[string][]string `json:"fields,omitempty"`
}

// Uploader builds gin handlers that store multipart file parts.
type Uploader struct {
	store         Handler
	maxFileSize   int64
	maxFieldSize  int64
	removeOnError bool
	removeRetry   resilience.RetryConfig
	slots         *resilience.Bulkhead
	limiters      *resilience.Limiters
	log           *logger.Logger
}

// New creates an Uploader over store.
func New(store Handler, opts ...Option) *Uploader {
	u := &Uploader{
		store:        store,
		maxFileSize:  DefaultMaxFileSize,
		maxFieldSize: DefaultMaxFieldSize,
		removeRetry:  resilience.RetryConfig{MaxAttempts: 1},
		log:          logger.WithComponent("httpupload"),
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// accept decides whether a file in field may be stored, given how many
// files the request has stored so far.
type accept func(field string, stored int) error

// Single accepts exactly one file, sent in field.
func (u *Uploader) Single(field string) gin.HandlerFunc {
	return u.handler(func(name string, stored int) error {
		if name != field {
			return unexpectedField(name)
		}
		if stored >= 1 {
			return apperrors.InvalidInput(field, "expected a single file")
		}
		return nil
	}, field)
}

// Array accepts up to limit files sent in field. A limit of 0 means no limit.
func (u *Uploader) Array(field string, limit int) gin.HandlerFunc {
	return u.handler(func(name string, stored int) error {
		if name != field {
			return unexpectedField(name)
		}
		if limit > 0 && stored >= limit {
			return apperrors.InvalidInput(field, fmt.Sprintf("at most %d files allowed", limit))
		}
		return nil
	}, "")
}

// Any accepts files in every field.
func (u *Uploader) Any() gin.HandlerFunc {
	return u.handler(func(string, int) error { return nil }, "")
}

// Respond writes the request's Result as a 201 response.
func Respond(c *gin.Context) {
	server.RespondCreated(c, Get(c))
}

// Get returns the Result stored by an upload handler, or an empty one.
func Get(c *gin.Context) *Result {
	if v, ok := c.Get(ContextKey); ok {
		if res, ok := v.(*Result); ok {
			return res
		}
	}
	return &Result{}
}

// Files returns the files stored for the request.
func Files(c *gin.Context) []*gridfs.File {
	return Get(c).Files
}

// handler returns the gin handler for one acceptance policy. A non-empty
// required field must have received a file.
func (u *Uploader) handler(allow accept, required string) gin.HandlerFunc {
	return func(c *gin.Context) {
		res := &Result{Files: make([]*gridfs.File, 0, 1)}
		c.Set(ContextKey, res)

		release, err := u.admit(c)
		if err != nil {
			u.fail(c, res, err)
			return
		}
		defer release()

		err = u.process(c, res, allow)
		if err == nil && required != "" && len(res.Files) == 0 {
			err = apperrors.MissingField(required)
		}
		if err != nil {
			u.fail(c, res, err)
			return
		}
		c.Next()
	}
}

// admit applies the rate limit and takes a concurrency slot.
func (u *Uploader) admit(c *gin.Context) (func(), error) {
	if u.limiters != nil && !u.limiters.Allow(c.ClientIP()) {
		return nil, apperrors.RateLimited("upload").WithDetail("client", c.ClientIP())
	}
	if u.slots == nil {
		return func() {}, nil
	}
	release, err := u.slots.Acquire(c.Request.Context())
	switch {
	case err == nil:
		return release, nil
	case errors.Is(err, resilience.ErrBulkheadFull), errors.Is(err, resilience.ErrBulkheadTimeout):
		return nil, apperrors.ServiceUnavailable("upload service").WithCause(err)
	default:
		return nil, err
	}
}

func (u *Uploader) process(c *gin.Context, res *Result, allow accept) error {
	mr, err := c.Request.MultipartReader()
	if err != nil {
		return apperrors.InvalidInput("Content-Type", err.Error())
	}
	ctx := c.Request.Context()

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return bodyError(err)
		}

		if part.FileName() == "" {
			err = u.readField(part, res)
		} else {
			err = u.storeFile(ctx, c.Request, part, res, allow)
		}
		part.Close()
		if err != nil {
			return err
		}
	}
}

func (u *Uploader) readField(part *multipart.Part, res *Result) error {
	name := part.FormName()
	value, err := io.ReadAll(io.LimitReader(part, u.maxFieldSize+1))
	if err != nil {
		return bodyError(err)
	}
	if int64(len(value)) > u.maxFieldSize {
		return apperrors.PayloadTooLarge(name, u.maxFieldSize)
	}
	if res.Fields == nil {
		res.Fields = make(map[string][]string)
	}
	res.Fields[name] = append(res.Fields[name], string(value))
	return nil
}

func (u *Uploader) storeFile(ctx context.Context, req *http.Request, part *multipart.Part, res *Result, allow accept) error {
	field := part.FormName()
	if err := allow(field, len(res.Files)); err != nil {
		return err
	}

	file, err := u.store.HandleFile(ctx, req, &gridfs.Part{
		FieldName:    field,
		OriginalName: part.FileName(),
		MimeType:     part.Header.Get("Content-Type"),
		Header:       part.Header,
	}, &limitedReader{r: part, field: field, limit: u.maxFileSize})
	if err != nil {
		return err
	}
	res.Files = append(res.Files, file)
	return nil
}

// fail removes stored files when configured and renders err.
func (u *Uploader) fail(c *gin.Context, res *Result, err error) {
	if u.removeOnError && len(res.Files) > 0 {
		ctx := context.WithoutCancel(c.Request.Context())
		for _, f := range res.Files {
			rmErr := resilience.RetryFunc(ctx, u.removeRetry, func(ctx context.Context) error {
				return u.store.RemoveFile(ctx, f)
			})
			if rmErr != nil {
				u.log.Warn("Could not remove file after failed request", logger.MergeWithError(logger.Fields(
					logger.FieldFilename, f.Filename,
					logger.FieldBucket, f.BucketName,
				), rmErr))
			}
		}
		res.Files = res.Files[:0]
	}

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		err = apperrors.PayloadTooLarge("body", tooLarge.Limit).WithCause(err)
	}
	appErr := gridfs.ToAppError(err)
	u.log.Debug("Upload request rejected", logger.MergeWithError(logger.Fields(
		"code", string(appErr.Code),
		"stored", len(res.Files),
	), err))
	_ = c.Error(err)
	server.RespondWithError(c, appErr)
}

func unexpectedField(field string) error {
	return apperrors.InvalidInput(field, "unexpected file field")
}

// bodyError classifies a failure reading the request body.
func bodyError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return apperrors.PayloadTooLarge("body", tooLarge.Limit)
	}
	return apperrors.InvalidInput("body", err.Error())
}

// limitedReader fails once more than limit bytes have been read.
type limitedReader struct {
	r     io.Reader
	field string
	limit int64
	read  int64
}

func (l *limitedReader) Read(p []byte) (int, error) {
	n, err := l.r.Read(p)
	l.read += int64(n)
	if l.read > l.limit {
		return n - int(l.read-l.limit), apperrors.PayloadTooLarge(l.field, l.limit)
	}
	return n, err
}
