// Package artifact stores the outputs each stage hands to the next one.
//
// A Store has one slot per Key. Writing a slot replaces its previous content
// as a whole: readers observe either the old blob or the new one.
package artifact

import (
	"context"

	"github.com/pkg/errors"
)

// Key names an artifact slot.
type Key string

const (
	Raw     Key = "raw"
	Train   Key = "train"
	Test    Key = "test"
	Encoder Key = "encoder"
	Model   Key = "model"
)

// Keys lists every slot in pipeline order.
var Keys = []Key{Raw, Train, Test, Encoder, Model}

var fileNames = map[Key]string{
	Raw:     "raw.csv",
	Train:   "train.csv",
	Test:    "test.csv",
	Encoder: "preprocessor.gob",
	Model:   "model.gob",
}

// ErrNotFound is returned when a slot has never been written.
var ErrNotFound = errors.New("artifact not found")

// ErrUnknownKey is returned for keys outside Keys.
var ErrUnknownKey = errors.New("unknown artifact key")

// FileName returns the file name of the slot inside an artifacts root.
func (k Key) FileName() string {
	return fileNames[k]
}

// Valid reports whether k is one of the known slots.
func (k Key) Valid() bool {
	_, ok := fileNames[k]

	return ok
}

// Store is a key to blob mapping.
type Store interface {
	// Put replaces the content of the slot.
	Put(ctx context.Context, key Key, blob []byte) error
	// Get returns the content of the slot or ErrNotFound.
	Get(ctx context.Context, key Key) ([]byte, error)
	// Location describes where the slot lives, for logs and hand-off bundles.
	Location(key Key) string
}
