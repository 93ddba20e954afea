package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"slices"
)

// Domain prefixes for content digests.
// Version suffix enables future algorithm migration.
const (
	DomainRow  = "pagetree/row/v1"
	DomainPage = "pagetree/page/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// rowObject builds the canonical object form of a row.
// A root row has no parent_id key at all, so "" and NULL never collide.
func rowObject(r Row) Object {
	obj := Object{
		"id":    String(r.ID),
		"type":  String(r.Type),
		"order": Int(r.Order),
		"props": r.Props,
	}
	if r.Props == nil {
		obj["props"] = Object{}
	}
	if r.ParentID != nil {
		obj["parent_id"] = String(*r.ParentID)
	}
	return obj
}

// RowDigest computes a content digest for a single row.
// Two rows have the same digest iff they describe the same node at the
// same place with the same props.
func RowDigest(r Row) (string, error) {
	canonical, err := MarshalCanonical(rowObject(r))
	if err != nil {
		return "", fmt.Errorf("RowDigest: failed to marshal row %q: %w", r.ID, err)
	}
	return hashWithDomain(DomainRow, canonical), nil
}

// PageDigest computes a digest over a set of rows.
// Row emission order does not matter: digests are sorted before hashing,
// so any flatten of the same tree yields the same page digest.
func PageDigest(rows []Row) (string, error) {
	digests := make(Array, 0, len(rows))
	sums := make([]string, 0, len(rows))
	for _, r := range rows {
		d, err := RowDigest(r)
		if err != nil {
			return "", fmt.Errorf("PageDigest: %w", err)
		}
		sums = append(sums, d)
	}
	slices.Sort(sums)
	for _, s := range sums {
		digests = append(digests, String(s))
	}

	canonical, err := MarshalCanonical(digests)
	if err != nil {
		return "", fmt.Errorf("PageDigest: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainPage, canonical), nil
}

// MustPageDigest is like PageDigest but panics on error.
// Use only in tests or when rows are known to be valid.
func MustPageDigest(rows []Row) string {
	d, err := PageDigest(rows)
	if err != nil {
		panic(err)
	}
	return d
}
