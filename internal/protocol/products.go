package protocol

import (
	"fmt"
	"strings"

	"chatcore/internal/types"
)

// ExtractProducts pulls carousel items out of a function response payload.
// Only items exposing a name and a price-like field (price or price_label)
// are retained; everything else in the payload is business content owned by
// the backend and is ignored here.
func ExtractProducts(response map[string]any) []types.Product {
	if response == nil {
		return nil
	}
	items, ok := response["products"].([]any)
	if !ok {
		return nil
	}

	var products []types.Product
	for _, raw := range items {
		item, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		name := stringField(item, "name")
		if name == "" {
			continue
		}
		price := stringField(item, "price")
		label := stringField(item, "price_label")
		if price == "" && label == "" {
			continue
		}
		products = append(products, types.Product{
			Name:       name,
			Price:      price,
			PriceLabel: label,
			URL:        stringField(item, "url"),
			ImageURL:   stringField(item, "image_url"),
		})
	}
	return products
}

// stringField tolerates numeric values: upstream sends prices both as
// formatted strings and as raw numbers.
func stringField(item map[string]any, key string) string {
	switch v := item[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case float64:
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%v", v)
	default:
		return strings.TrimSpace(fmt.Sprintf("%v", v))
	}
}
