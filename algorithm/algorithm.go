// Package algorithm holds the fixed catalog of block-cipher algorithms this
// module knows how to run. The table is indexed by ID and that index is part
// of the on-disk format: entries are never reordered, only appended.
package algorithm

import "zfscrypt/zerr"

// Family names the AEAD construction an algorithm uses.
type Family int

const (
	// NONE marks a sentinel entry (inherit/off) with no cipher of its own.
	NONE Family = iota
	CCM
	GCM
)

func (f Family) String() string {
	switch f {
	case CCM:
		return "CCM"
	case GCM:
		return "GCM"
	default:
		return "NONE"
	}
}

// ID indexes the catalog. Values are part of the on-disk format.
type ID int

const (
	Inherit ID = iota
	On
	Off
	AES128CCM
	AES192CCM
	AES256CCM
	AES128GCM
	AES192GCM
	AES256GCM

	count
)

// Default is the algorithm used where the surrounding layer does not ask
// for a specific one (the second-level cache key, in particular).
const Default = AES256CCM

// Descriptor is an immutable catalog row.
type Descriptor struct {
	ID        ID
	Family    Family
	KeyLen    int // bytes
	Mechanism string
	Name      string
}

// Table is the fixed, ordered algorithm catalog. Index values must not be
// reordered; they are persisted in on-disk dataset properties by the
// surrounding storage layer.
var Table = [count]Descriptor{
	Inherit:    {Inherit, NONE, 0, "", "inherit"},
	On:         {On, CCM, 32, "CKM_AES_CCM", "on"},
	Off:        {Off, NONE, 0, "", "off"},
	AES128CCM:  {AES128CCM, CCM, 16, "CKM_AES_CCM", "aes-128-ccm"},
	AES192CCM:  {AES192CCM, CCM, 24, "CKM_AES_CCM", "aes-192-ccm"},
	AES256CCM:  {AES256CCM, CCM, 32, "CKM_AES_CCM", "aes-256-ccm"},
	AES128GCM:  {AES128GCM, GCM, 16, "CKM_AES_GCM", "aes-128-gcm"},
	AES192GCM:  {AES192GCM, GCM, 24, "CKM_AES_GCM", "aes-192-gcm"},
	AES256GCM:  {AES256GCM, GCM, 32, "CKM_AES_GCM", "aes-256-gcm"},
}

// Lookup returns the descriptor for id, or a zerr.InvalidArgument error
// wrapping a *RangeError if id is out of range or names a family-less
// sentinel (inherit/off) that has no cipher to run.
func Lookup(id ID) (Descriptor, error) {
	if id < 0 || int(id) >= len(Table) {
		return Descriptor{}, zerr.Wrap(zerr.InvalidArgument, "algorithm: lookup failed", &RangeError{ID: id})
	}
	d := Table[id]
	if d.Family == NONE {
		return Descriptor{}, zerr.Wrap(zerr.InvalidArgument, "algorithm: lookup failed", &RangeError{ID: id})
	}
	return d, nil
}

// RangeError reports an algorithm ID that is out of range or not runnable.
type RangeError struct{ ID ID }

func (e *RangeError) Error() string {
	return "algorithm: id out of range or not runnable"
}
