package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/marketloom/search-service/internal/domain"
)

// maxKeyLen caps the canonical key length; longer keys are replaced by
// their SHA-256 digest to stay friendly to Redis key limits and logs.
const maxKeyLen = 200

const keyPrefix = "search:resp:"

// SearchKey derives a deterministic cache key from a search request and the
// caller's vary dimensions. Two requests that produce the same result set
// map to the same key: attribute keys are sorted and nil filters are
// skipped. Role is part of the key because admins see non-active documents;
// locale is part of the key so localized responses never share an entry.
func SearchKey(req *domain.SearchRequest, id domain.Identity) string {
	var b strings.Builder
	b.WriteString("q=")
	b.WriteString(req.Query)
	b.WriteString("|cat=")
	b.WriteString(req.CategoryID)

	if len(req.BrandIDs) > 0 {
		brands := append([]string(nil), req.BrandIDs...)
		sort.Strings(brands)
		b.WriteString("|brands=")
		b.WriteString(strings.Join(brands, ","))
	}

	writeFloat(&b, "minp", req.MinPrice)
	writeFloat(&b, "maxp", req.MaxPrice)
	writeFloat(&b, "minr", req.MinRating)
	if req.InStock != nil {
		fmt.Fprintf(&b, "|stock=%t", *req.InStock)
	}
	if req.Status != nil {
		b.WriteString("|status=")
		b.WriteString(string(*req.Status))
	}

	if len(req.Attributes) > 0 {
		keys := make([]string, 0, len(req.Attributes))
		for k := range req.Attributes {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			values := append([]string(nil), req.Attributes[k]...)
			sort.Strings(values)
			b.WriteString("|attr.")
			b.WriteString(k)
			b.WriteString("=")
			b.WriteString(strings.Join(values, ","))
		}
	}

	b.WriteString("|sort=")
	b.WriteString(string(req.SortBy))
	b.WriteString("|page=")
	b.WriteString(strconv.Itoa(req.Page))
	b.WriteString("|limit=")
	b.WriteString(strconv.Itoa(req.Limit))

	if len(req.Facets) > 0 {
		facets := make([]string, 0, len(req.Facets))
		for _, f := range req.Facets {
			facets = append(facets, string(f))
		}
		sort.Strings(facets)
		b.WriteString("|facets=")
		b.WriteString(strings.Join(facets, ","))
	}

	b.WriteString("|role=")
	b.WriteString(id.Role)
	b.WriteString("|locale=")
	b.WriteString(id.Locale)

	canonical := b.String()
	if len(canonical) > maxKeyLen {
		sum := sha256.Sum256([]byte(canonical))
		return keyPrefix + hex.EncodeToString(sum[:])
	}
	return keyPrefix + canonical
}

func writeFloat(b *strings.Builder, name string, v *float64) {
	if v == nil {
		return
	}
	b.WriteString("|")
	b.WriteString(name)
	b.WriteString("=")
	b.WriteString(strconv.FormatFloat(*v, 'f', -1, 64))
}
