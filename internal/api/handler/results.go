package handler

import (
	"net/http"
	"time"

	"github.com/provtrack/tierwatch/internal/api/response"
	"github.com/provtrack/tierwatch/pkg/models"
)

// ResultSource exposes the published current result. A nil result means no
// run has ever completed; result endpoints still succeed and report that.
type ResultSource interface {
	Current() *models.AggregateResult
}

type resultMeta struct {
	Available   bool   `json:"available"`
	RunID       string `json:"run_id,omitempty"`
	GeneratedAt string `json:"generated_at,omitempty"`
}

func metaFor(result *models.AggregateResult) resultMeta {
	if result == nil {
		return resultMeta{Available: false}
	}
	return resultMeta{
		Available:   true,
		RunID:       result.RunID.String(),
		GeneratedAt: result.GeneratedAt.Format(time.RFC3339),
	}
}

// NewSummaryHandler returns an http.HandlerFunc for GET /api/v1/analysis/summary.
func NewSummaryHandler(src ResultSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result := src.Current()
		payload := struct {
			resultMeta
			Summary *models.Summary `json:"summary,omitempty"`
		}{resultMeta: metaFor(result)}
		if result != nil {
			payload.Summary = &result.Summary
		}
		response.JSON(w, payload)
	}
}

// NewProductsHandler returns an http.HandlerFunc for GET /api/v1/analysis/products.
func NewProductsHandler(src ResultSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result := src.Current()
		payload := struct {
			resultMeta
			ByProduct map[string]models.TierCounts `json:"by_product"`
		}{resultMeta: metaFor(result), ByProduct: map[string]models.TierCounts{}}
		if result != nil {
			payload.ByProduct = result.ByProduct
		}
		response.JSON(w, payload)
	}
}

// NewAccountsHandler returns an http.HandlerFunc for GET /api/v1/analysis/accounts.
func NewAccountsHandler(src ResultSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result := src.Current()
		payload := struct {
			resultMeta
			ByAccount map[string]*models.AccountAggregate `json:"by_account"`
		}{resultMeta: metaFor(result), ByAccount: map[string]*models.AccountAggregate{}}
		if result != nil {
			payload.ByAccount = result.ByAccount
		}
		response.JSON(w, payload)
	}
}

// NewRecentHandler returns an http.HandlerFunc for GET /api/v1/analysis/recent.
func NewRecentHandler(src ResultSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result := src.Current()
		payload := struct {
			resultMeta
			Recent []models.PackageChange `json:"recent"`
		}{resultMeta: metaFor(result), Recent: []models.PackageChange{}}
		if result != nil {
			payload.Recent = result.Recent
		}
		response.JSON(w, payload)
	}
}
