// Package cachekey builds the deterministic cache keys the deterministic
// data layer uses to serve repeated (query_id, params) pairs from cache.
//
// key = namespace || ":qr:" || op || ":" || query_id || ":" || hash16 || ":" || schema_version
// hash16 = first 16 hex chars of sha256(canonical_json(sorted_params))
//
// No language-native hash function is used: only crypto/sha256, so the
// same key is produced across processes and Go versions.
package cachekey

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"time"
)

// SchemaVersion is appended to every key so a future output_schema change
// can be rolled out without colliding with stale cached rows.
const SchemaVersion = "v1"

// Build returns the deterministic cache key for one (op, queryID, params) call.
func Build(namespace, op, queryID string, params map[string]any) string {
	return namespace + ":qr:" + op + ":" + queryID + ":" + Hash16(params) + ":" + SchemaVersion
}

// Hash16 returns the first 16 hex characters of sha256(canonicalJSON(params)).
func Hash16(params map[string]any) string {
	canonical := Canonicalize(params)
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])[:16]
}

// Canonicalize renders params as JSON with dictionary keys sorted
// recursively, dates rendered as ISO-8601, and numbers in their minimal
// JSON form. Two maps that are equal after normalization produce
// byte-identical output regardless of original key order.
func Canonicalize(params map[string]any) []byte {
	normalized := normalize(params)
	// encoding/json already serializes map[string]any keys in sorted
	// order and renders float64/int in minimal form; normalize() handles
	// the recursive descent into nested maps/slices/time.Time values that
	// json.Marshal would otherwise leave in caller-provided shapes.
	out, err := json.Marshal(normalized)
	if err != nil {
		// params are caller-controlled, already-validated parameter
		// values; a marshal failure here means a non-JSON-able type slipped
		// through binding validation, which is a bug upstream, not a
		// recoverable cache condition.
		panic("cachekey: params not JSON-marshalable: " + err.Error())
	}
	return out
}

func normalize(v any) any {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make(map[string]any, len(val))
		for _, k := range keys {
			out[k] = normalize(val[k])
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalize(item)
		}
		return out
	case time.Time:
		return val.UTC().Format(time.RFC3339)
	default:
		return val
	}
}
