package uriqueue

// standardFields are stored raw (0x00 prefix), never compressed, regardless
// of size (§4.B).
var standardFields = map[string]bool{
	"_uri:type":            true,
	"_uri:name":            true,
	"_uri:description":     true,
	"_uri:image":           true,
	"_uri:services":        true,
	"_uri:registrations":   true,
	"_uri:supported_trust": true,
	"_uri:active":          true,
	"_uri:x402_support":    true,
	"_uri:skills":          true,
	"_uri:domains":         true,
	"_uri:_status":         true,
}

// zstdThresholdBytes is the size above which a non-standard field is
// compressed before storage (§4.B).
const zstdThresholdBytes = 256

func isStandardField(key string) bool {
	return standardFields["_uri:"+key] || standardFields[key]
}
