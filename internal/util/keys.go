package util

import (
	"crypto/sha256"
	"encoding/hex"
)

// FlushKey is the generation key bumped by a full flush.
const FlushKey = "flush"

// EntryKey returns the provider key of an entry: "entry:<ns>:<id>".
func EntryKey(ns, id string) string {
	return "entry:" + ns + ":" + id
}

// TagKey returns the generation key of a tag: "tag:<tag>".
func TagKey(tag string) string {
	return "tag:" + tag
}

// Redact returns a short stable digest of k for logs.
func Redact(k string) string {
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}
