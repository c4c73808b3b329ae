// Package model defines the documents stored by the social hub and the
// records exchanged between layers.
package model

import (
	"bytes"
	"strconv"
	"time"
)

// Timestamp is a point in time serialised as integer microseconds since the
// Unix epoch. Documents are ordered by comparing these values inside the
// document store, so the encoding has to sort numerically.
//
// The zero Timestamp encodes as 0 and decodes back to the zero value.
type Timestamp struct {
	time.Time
}

// Now returns the current time truncated to microsecond precision, which is
// exactly what survives a round trip through the store.
func Now() Timestamp {
	return Timestamp{time.Now().UTC().Truncate(time.Microsecond)}
}

// At wraps t.
func At(t time.Time) Timestamp {
	return Timestamp{t.UTC().Truncate(time.Microsecond)}
}

// Micros returns the stored integer form.
func (t Timestamp) Micros() int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMicro()
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return strconv.AppendInt(nil, t.Micros(), 10), nil
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*t = Timestamp{}
		return nil
	}
	// Increment mutations round-trip numbers through float64, so accept
	// both integer and float encodings.
	f, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return err
	}
	if f == 0 {
		*t = Timestamp{}
		return nil
	}
	*t = Timestamp{time.UnixMicro(int64(f)).UTC()}
	return nil
}
