package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/ldrseguros/plano-de-saude-sinvest-sub000/internal/middleware"
	"github.com/ldrseguros/plano-de-saude-sinvest-sub000/internal/models"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

func actorFromContext(c *gin.Context) *string {
	claims := claimsFromContext(c)
	if claims == nil {
		return nil
	}
	id := claims.UserID
	return &id
}
