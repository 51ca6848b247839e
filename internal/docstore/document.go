// Package docstore holds trail.Store implementations that persist each
// record as a single JSON document.
package docstore

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"trail-go/internal/trail"
)

// encodeRecord serializes a record as its stored document.
func encodeRecord(rec *trail.Record) ([]byte, error) {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding trail %s: %w", rec.ID, err)
	}
	return data, nil
}

// decodeRecord parses a stored document.
func decodeRecord(data []byte) (*trail.Record, error) {
	var rec trail.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decoding trail document: %w", err)
	}
	return &rec, nil
}

// newDocument prepares a record for its first write: it receives the
// store-assigned ID, the scope it is written to, and version 1.
func newDocument(scope, id string, rec *trail.Record) *trail.Record {
	doc := rec.Clone()
	doc.ID = id
	doc.Scope = scope
	doc.Version = 1
	return doc
}

// sortByCreation orders records oldest first, then by ID, so that List is
// deterministic for every backend.
func sortByCreation(recs []*trail.Record) {
	sort.SliceStable(recs, func(i, j int) bool {
		if !recs[i].Timestamp.Equal(recs[j].Timestamp) {
			return recs[i].Timestamp.Before(recs[j].Timestamp)
		}
		return recs[i].ID < recs[j].ID
	})
}

// scopeKey turns an opaque scope string into a single safe path segment.
func scopeKey(scope string) string {
	if scope == "" {
		return "_"
	}
	return base64.RawURLEncoding.EncodeToString([]byte(scope))
}

// validID reports whether id can name a document without escaping its scope.
func validID(id string) bool {
	return id != "" && id != "." && id != ".." && !strings.ContainsAny(id, `/\`)
}
