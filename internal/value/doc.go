// Package value defines the identities and property values that flow
// through the commit pipeline.
//
// Values form a sealed set (Null, String, Int, Bool, List, Map). Floats are
// deliberately absent: property equality drives no-op change suppression
// and event digests, and both must be deterministic.
//
// Canonical encoding follows RFC 8785 (UTF-16 key ordering, NFC strings,
// no HTML escaping). Digests use SHA-256 with a domain separator.
package value
