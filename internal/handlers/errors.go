package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/revaspay/onboarding/internal/services/kyc/regtank"
	"github.com/revaspay/onboarding/internal/services/onboarding"
)

// respondError maps service errors onto HTTP responses
func respondError(c *gin.Context, err error) {
	var vendorErr *regtank.VendorError
	switch {
	case errors.Is(err, onboarding.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, onboarding.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Organization or onboarding record not found"})
	case errors.Is(err, onboarding.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "You are not allowed to manage this organization's onboarding"})
	case errors.Is(err, onboarding.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.As(err, &vendorErr):
		log.Printf("Verification vendor error: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{
			"error":       "Verification provider request failed",
			"vendor_code": vendorErr.Code,
		})
	default:
		log.Printf("Onboarding request failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
