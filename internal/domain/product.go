package domain

import "strings"

// ProductSummary describes one product returned by a completed brand
// search. It carries the fields needed to render a selection list and
// to identify the product in the source affiliate feed.
type ProductSummary struct {
	SourceAPI       string   `json:"source_api"`
	SourceProductID string   `json:"source_product_id"`
	SKU             string   `json:"sku"`
	Title           string   `json:"title"`
	Description     string   `json:"description,omitempty"`
	Price           float64  `json:"price"`
	SalePrice       float64  `json:"sale_price,omitempty"`
	Currency        string   `json:"currency"`
	ProductURL      string   `json:"product_url"`
	ImageURL        string   `json:"image_url,omitempty"`
	Available       bool     `json:"available"`
	KeywordsMatched []string `json:"keywords_matched,omitempty"`
}

// MakeSKU derives the canonical SKU for a product from its brand name,
// source API and source product ID, e.g. "GEORGIA_BOOT-CJ-12345".
func MakeSKU(brandName, sourceAPI, sourceProductID string) string {
	brandSlug := strings.ToUpper(brandName)
	brandSlug = strings.ReplaceAll(brandSlug, " ", "_")
	brandSlug = strings.ReplaceAll(brandSlug, ".", "")

	apiSlug := strings.ToUpper(sourceAPI)
	productSlug := strings.ReplaceAll(sourceProductID, " ", "-")

	return brandSlug + "-" + apiSlug + "-" + productSlug
}
