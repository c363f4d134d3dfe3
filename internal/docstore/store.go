// Package docstore is a small document database over SQL. Documents are JSON
// objects addressed by (collection, id); writes are applied in atomic batches
// and live queries push full snapshots to subscribers after every commit.
package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	apperrors "github.com/julianstephens/routineo/internal/errors"
)

var (
	ErrNotFound      = &apperrors.Error{Reason: apperrors.ReasonNotFound, Msg: "document not found"}
	ErrPrecondition  = &apperrors.Error{Reason: apperrors.ReasonForbidden, Msg: "precondition failed"}
	ErrAlreadyExists = &apperrors.Error{Reason: apperrors.ReasonConflict, Msg: "document already exists"}
	ErrClosed        = apperrors.New("document store is closed")
)

// Document is a stored record. Data holds the JSON object body.
type Document struct {
	ID        string
	Data      json.RawMessage
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Decode unmarshals the document body into v.
func (d Document) Decode(v any) error {
	if err := json.Unmarshal(d.Data, v); err != nil {
		return fmt.Errorf("decoding document %s: %w", d.ID, err)
	}
	return nil
}

// Fields returns the document body as a generic map.
func (d Document) Fields() (map[string]any, error) {
	var m map[string]any
	if err := json.Unmarshal(d.Data, &m); err != nil {
		return nil, fmt.Errorf("decoding document %s: %w", d.ID, err)
	}
	return m, nil
}

type Op string

const (
	OpCreate Op = "create" // insert; fails if the id exists
	OpSet    Op = "set"    // replace the whole body, inserting if missing
	OpMerge  Op = "merge"  // merge fields into the body, inserting if missing
	OpUpdate Op = "update" // merge fields into an existing body
	OpDelete Op = "delete"
)

// Precondition requires an existing document's field to equal Value at the
// time the write is applied. A failed precondition aborts the whole batch.
type Precondition struct {
	Field string
	Value any
}

// OwnedBy requires the target document to belong to userID.
func OwnedBy(userID string) Precondition {
	return Precondition{Field: "user_id", Value: userID}
}

// Write is one mutation inside a batch.
type Write struct {
	Op         Op
	Collection string
	ID         string
	Data       any            // body for create/set/merge
	Fields     map[string]any // fields for update
	Require    []Precondition
}

func CreateWrite(collection, id string, data any) Write {
	return Write{Op: OpCreate, Collection: collection, ID: id, Data: data}
}

func SetWrite(collection, id string, data any, merge bool) Write {
	op := OpSet
	if merge {
		op = OpMerge
	}
	return Write{Op: op, Collection: collection, ID: id, Data: data}
}

func UpdateWrite(collection, id string, fields map[string]any, require ...Precondition) Write {
	return Write{Op: OpUpdate, Collection: collection, ID: id, Fields: fields, Require: require}
}

func DeleteWrite(collection, id string, require ...Precondition) Write {
	return Write{Op: OpDelete, Collection: collection, ID: id, Require: require}
}

// Snapshot is the complete result of a live query at one point in time.
// Seq increases with every snapshot delivered on a subscription.
type Snapshot struct {
	Seq  uint64
	Docs []Document
	Err  error
}

// Store is the document store contract used by the repositories.
type Store interface {
	Get(ctx context.Context, collection, id string) (Document, error)
	Query(ctx context.Context, collection string, filters ...Filter) ([]Document, error)
	Subscribe(ctx context.Context, collection string, filters ...Filter) (*Subscription, error)
	Add(ctx context.Context, collection string, data any) (string, error)
	Create(ctx context.Context, collection, id string, data any) error
	Set(ctx context.Context, collection, id string, data any, merge bool) error
	Update(ctx context.Context, collection, id string, fields map[string]any, require ...Precondition) error
	Delete(ctx context.Context, collection, id string, require ...Precondition) error
	Batch(ctx context.Context, writes []Write) error
	Ping(ctx context.Context) error
	Close() error
}
