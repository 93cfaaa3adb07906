package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"slices"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"favsync/internal/fav"
	"favsync/internal/model"
)

// objectAPI is the subset of the S3 client used by S3Store.
type objectAPI interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// ownerDocument is the JSON object stored per owner.
type ownerDocument struct {
	Records []model.FavoriteRecord `json:"records"`
}

// S3Store keeps each owner's favorites in one JSON object at
// <prefix>owners/<owner>/favorites.json. Writes are conditional on the ETag read
// before the change, so concurrent writers never overwrite each other; the
// loser sees fav.ErrConflict after maxAttempts re-reads.
type S3Store struct {
	client      objectAPI
	bucket      string
	prefix      string
	ids         fav.IDGenerator
	maxAttempts int
}

// NewS3Store creates a store over an existing S3 client.
func NewS3Store(client *s3.Client, bucket, prefix string, ids fav.IDGenerator) *S3Store {
	return newS3Store(client, bucket, prefix, ids)
}

func newS3Store(client objectAPI, bucket, prefix string, ids fav.IDGenerator) *S3Store {
	if ids == nil {
		ids = fav.UUIDGenerator{}
	}
	return &S3Store{
		client:      client,
		bucket:      bucket,
		prefix:      prefix,
		ids:         ids,
		maxAttempts: 3,
	}
}

// ErrInvalidOwner is returned for owner ids that cannot name an object key.
var ErrInvalidOwner = errors.New("remote: invalid owner id")

// key escapes ownerID into a single path segment, so an id containing "/" or
// ".." can never address another owner's document.
func (s *S3Store) key(ownerID string) (string, error) {
	switch ownerID {
	case "", ".", "..":
		return "", fmt.Errorf("%w: %q", ErrInvalidOwner, ownerID)
	}
	return s.prefix + "owners/" + url.PathEscape(ownerID) + "/favorites.json", nil
}

func (s *S3Store) List(ctx context.Context, ownerID string) ([]model.FavoriteRecord, error) {
	doc, _, err := s.read(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	records := slices.Clone(doc.Records)
	sortNewestFirst(records)
	if records == nil {
		records = []model.FavoriteRecord{}
	}
	return records, nil
}

func (s *S3Store) Put(ctx context.Context, rec model.FavoriteRecord) (model.FavoriteRecord, error) {
	stored, err := s.Commit(ctx, rec.OwnerID, fav.Batch{Puts: []model.FavoriteRecord{rec}})
	if err != nil {
		return model.FavoriteRecord{}, err
	}
	return stored[0], nil
}

func (s *S3Store) Commit(ctx context.Context, ownerID string, b fav.Batch) ([]model.FavoriteRecord, error) {
	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		doc, etag, err := s.read(ctx, ownerID)
		if err != nil {
			return nil, err
		}

		stored := apply(&doc, ownerID, b, s.ids)

		err = s.write(ctx, ownerID, doc, etag)
		if errors.Is(err, fav.ErrConflict) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return stored, nil
	}
	return nil, fav.ErrConflict
}

// apply mutates doc in place and returns the stored record for each put.
func apply(doc *ownerDocument, ownerID string, b fav.Batch, ids fav.IDGenerator) []model.FavoriteRecord {
	for _, itemID := range b.DeleteItemIDs {
		doc.Records = slices.DeleteFunc(doc.Records, func(r model.FavoriteRecord) bool {
			return r.ItemID == itemID
		})
	}

	stored := make([]model.FavoriteRecord, 0, len(b.Puts))
	for _, rec := range b.Puts {
		i := slices.IndexFunc(doc.Records, func(r model.FavoriteRecord) bool {
			return r.ItemID == rec.ItemID
		})
		if i >= 0 {
			stored = append(stored, doc.Records[i])
			continue
		}
		rec.OwnerID = ownerID
		rec.ID = ids.New()
		doc.Records = append(doc.Records, rec)
		stored = append(stored, rec)
	}
	return stored
}

// read fetches the owner's document. A missing object is an empty document
// with an empty ETag.
func (s *S3Store) read(ctx context.Context, ownerID string) (ownerDocument, string, error) {
	key, err := s.key(ownerID)
	if err != nil {
		return ownerDocument{}, "", err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return ownerDocument{}, "", nil
		}
		return ownerDocument{}, "", fmt.Errorf("reading favorites for %s: %w", ownerID, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return ownerDocument{}, "", fmt.Errorf("reading favorites body for %s: %w", ownerID, err)
	}

	var doc ownerDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return ownerDocument{}, "", fmt.Errorf("decoding favorites for %s: %w", ownerID, err)
	}
	return doc, aws.ToString(out.ETag), nil
}

// write stores doc if the object still has etag, or does not exist when etag
// is empty.
func (s *S3Store) write(ctx context.Context, ownerID string, doc ownerDocument, etag string) error {
	key, err := s.key(ownerID)
	if err != nil {
		return err
	}
	if doc.Records == nil {
		doc.Records = []model.FavoriteRecord{}
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding favorites for %s: %w", ownerID, err)
	}

	in := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	}
	if etag == "" {
		in.IfNoneMatch = aws.String("*")
	} else {
		in.IfMatch = aws.String(etag)
	}

	if _, err := s.client.PutObject(ctx, in); err != nil {
		if isPreconditionFailed(err) {
			return fav.ErrConflict
		}
		return fmt.Errorf("writing favorites for %s: %w", ownerID, err)
	}
	return nil
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "NotFound"
}

func isPreconditionFailed(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.ErrorCode() {
	case "PreconditionFailed", "ConditionalRequestConflict":
		return true
	}
	return false
}

// Compile-time check that S3Store implements fav.RemoteStore
var _ fav.RemoteStore = (*S3Store)(nil)
