package signer

import "encoding/json"

// canonicalize produces the exact byte sequence that gets signed: compact
// separators, lexicographically sorted object keys, UTF-8. encoding/json's
// default Marshal already satisfies all three for a map[string]any (no
// indentation, and Go's encoder sorts map keys recursively), so canonicalize
// is a thin, named wrapper rather than a hand-rolled serializer.
func canonicalize(payload map[string]any) ([]byte, error) {
	return json.Marshal(payload)
}
