package types

// Product is a carousel item extracted from a tool response. PriceLabel is
// the customer-facing price text; Price is the raw numeric display when the
// upstream price parsed as a number.
type Product struct {
	Name       string `json:"name"`
	Price      string `json:"price,omitempty"`
	PriceLabel string `json:"price_label,omitempty"`
	URL        string `json:"url,omitempty"`
	ImageURL   string `json:"image_url,omitempty"`
}
