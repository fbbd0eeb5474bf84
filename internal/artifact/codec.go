package artifact

import (
	"context"
	"crypto/sha256"
	"encoding"
	"encoding/hex"

	"github.com/pkg/errors"
)

// Save serialises v into the slot.
func Save(ctx context.Context, store Store, key Key, v encoding.BinaryMarshaler) error {
	blob, err := v.MarshalBinary()
	if err != nil {
		return errors.Wrapf(err, "unable to encode %s", key)
	}

	return store.Put(ctx, key, blob)
}

// Load reads the slot into v.
func Load(ctx context.Context, store Store, key Key, v encoding.BinaryUnmarshaler) error {
	blob, err := store.Get(ctx, key)
	if err != nil {
		return err
	}

	err = v.UnmarshalBinary(blob)
	if err != nil {
		return errors.Wrapf(err, "unable to decode %s", key)
	}

	return nil
}

// Digest is the hex SHA-256 of an artifact blob.
func Digest(blob []byte) string {
	sum := sha256.Sum256(blob)

	return hex.EncodeToString(sum[:])
}
