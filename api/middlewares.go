package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/safwentrabelsi/staking-aggregator/adapter"
)

const adapterKey = "adapter"

type chainRegistry interface {
	Chains() []string
	Get(chain string) (adapter.Adapter, error)
}

// ValidateChainParam rejects requests for chains that are not configured and
// stores the chain adapter in the context.
func ValidateChainParam(registry chainRegistry) gin.HandlerFunc {
	return func(c *gin.Context) {
		chain := c.Param("chain")
		a, err := registry.Get(chain)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			c.Abort()
			return
		}
		c.Set(adapterKey, a)
		c.Next()
	}
}
