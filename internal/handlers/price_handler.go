package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	apperrors "coinfolio/internal/errors"
	"coinfolio/internal/services"
)

const maxPriceIDs = 50

// PriceHandler serves cached market prices
type PriceHandler struct {
	priceService services.PriceServicer
}

// NewPriceHandler creates a new PriceHandler
func NewPriceHandler(priceService services.PriceServicer) *PriceHandler {
	return &PriceHandler{priceService: priceService}
}

// PriceQuote is the USD price of one asset.
type PriceQuote struct {
	USD json.Number `json:"usd" swaggertype:"number"`
}

// Prices returns USD prices keyed by asset id
// @Summary     Get prices
// @Description USD prices for market-data asset ids (e.g. bitcoin). Unknown ids are omitted.
// @Tags        prices
// @Produce     json
// @Param       symbols query string true "Comma-separated asset ids"
// @Success     200 {object} map[string]PriceQuote "Prices by id"
// @Failure     400 {object} ErrorResponse "No ids"
// @Failure     502 {object} ErrorResponse "Prices unavailable"
// @Router      /prices [get]
func (h *PriceHandler) Prices(c *gin.Context) {
	ids := splitIDs(c.Query("symbols"))
	if len(ids) == 0 {
		ids = splitIDs(c.Query("ids"))
	}
	if len(ids) == 0 {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, "symbols is required"))
		return
	}
	if len(ids) > maxPriceIDs {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, "too many symbols"))
		return
	}

	prices, err := h.priceService.Prices(c.Request.Context(), ids)
	if err != nil {
		respondWithError(c, err)
		return
	}

	out := make(map[string]PriceQuote, len(prices))
	for id, p := range prices {
		out[id] = PriceQuote{USD: number(p)}
	}
	c.JSON(http.StatusOK, out)
}

func splitIDs(raw string) []string {
	seen := make(map[string]struct{})
	var ids []string
	for _, part := range strings.Split(raw, ",") {
		id := strings.ToLower(strings.TrimSpace(part))
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}
