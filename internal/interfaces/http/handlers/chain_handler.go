package handlers

import (
	"net/http"
	"sort"
	"strconv"

	"github.com/gin-gonic/gin"
	"stablepay.backend/internal/domain/entities"
	domainerrors "stablepay.backend/internal/domain/errors"
	"stablepay.backend/internal/interfaces/http/response"
)

// ChainHandler handles chain endpoints
type ChainHandler struct {
	chains map[string]entities.Chain
}

// NewChainHandler creates a new chain handler over the supported chain registry
func NewChainHandler(chains map[string]entities.Chain) *ChainHandler {
	return &ChainHandler{chains: chains}
}

type tokenResponse struct {
	Symbol          string `json:"symbol"`
	ContractAddress string `json:"contractAddress"`
	Decimals        int    `json:"decimals"`
}

type chainResponse struct {
	ID          string          `json:"id"`
	CAIP2       string          `json:"caip2"`
	Name        string          `json:"name"`
	ExplorerURL string          `json:"explorerUrl"`
	Tokens      []tokenResponse `json:"tokens"`
}

func toChainResponse(chain entities.Chain) chainResponse {
	tokens := []tokenResponse{}
	for _, t := range entities.TokensForChain(chain.ID) {
		tokens = append(tokens, tokenResponse{
			Symbol:          t.Symbol,
			ContractAddress: t.ContractAddress,
			Decimals:        t.Decimals,
		})
	}
	return chainResponse{
		ID:          chain.ID,
		CAIP2:       "eip155:" + chain.ID,
		Name:        chain.Name,
		ExplorerURL: chain.ExplorerURL,
		Tokens:      tokens,
	}
}

// ListChains lists the chains payments can settle on, with their tokens
// GET /api/v1/chains
func (h *ChainHandler) ListChains(c *gin.Context) {
	out := make([]chainResponse, 0, len(h.chains))
	for _, chain := range h.chains {
		out = append(out, toChainResponse(chain))
	}
	sort.Slice(out, func(i, j int) bool {
		a, _ := strconv.Atoi(out[i].ID)
		b, _ := strconv.Atoi(out[j].ID)
		return a < b
	})

	response.Success(c, http.StatusOK, gin.H{"chains": out})
}

// GetChain returns one supported chain
// GET /api/v1/chains/:id
func (h *ChainHandler) GetChain(c *gin.Context) {
	chain, ok := h.chains[c.Param("id")]
	if !ok {
		response.Error(c, domainerrors.NotFound("Chain not supported"))
		return
	}
	response.Success(c, http.StatusOK, gin.H{"chain": toChainResponse(chain)})
}
