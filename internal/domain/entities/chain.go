package entities

import (
	"sort"
	"strings"
)

// Chain is an EVM network the payment provider can settle on.
type Chain struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ExplorerURL string `json:"explorerUrl"`
}

// Token is a stablecoin deployment on one chain.
type Token struct {
	Symbol          string `json:"symbol"`
	ChainID         string `json:"chainId"`
	ContractAddress string `json:"contractAddress"`
	Decimals        int    `json:"decimals"`
}

// Supported chains, keyed by EIP-155 chain id.
var SupportedChains = map[string]Chain{
	"1":     {ID: "1", Name: "Ethereum", ExplorerURL: "https://etherscan.io"},
	"10":    {ID: "10", Name: "Optimism", ExplorerURL: "https://optimistic.etherscan.io"},
	"137":   {ID: "137", Name: "Polygon", ExplorerURL: "https://polygonscan.com"},
	"8453":  {ID: "8453", Name: "Base", ExplorerURL: "https://basescan.org"},
	"42161": {ID: "42161", Name: "Arbitrum", ExplorerURL: "https://arbiscan.io"},
}

// SupportedTokens lists the USDC/USDT contracts accepted for payments.
var SupportedTokens = []Token{
	{Symbol: "USDC", ChainID: "1", ContractAddress: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", Decimals: 6},
	{Symbol: "USDT", ChainID: "1", ContractAddress: "0xdAC17F958D2ee523a2206206994597C13D831ec7", Decimals: 6},
	{Symbol: "USDC", ChainID: "10", ContractAddress: "0x0b2C639c533813f4Aa9D7837cAf62653d097Ff85", Decimals: 6},
	{Symbol: "USDT", ChainID: "10", ContractAddress: "0x94b008aA00579c1307B0EF2c499aD98a8ce58e58", Decimals: 6},
	{Symbol: "USDC", ChainID: "137", ContractAddress: "0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359", Decimals: 6},
	{Symbol: "USDT", ChainID: "137", ContractAddress: "0xc2132D05D31c914a87C6611C10748AEb04B58e8F", Decimals: 6},
	{Symbol: "USDC", ChainID: "8453", ContractAddress: "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913", Decimals: 6},
	{Symbol: "USDT", ChainID: "8453", ContractAddress: "0xfde4C96c8593536E31F229EA8f37b2ADa2699bb2", Decimals: 6},
	{Symbol: "USDC", ChainID: "42161", ContractAddress: "0xaf88d065e77c8cC2239327C5EDb3A432268e5831", Decimals: 6},
	{Symbol: "USDT", ChainID: "42161", ContractAddress: "0xFd086bC7CD5C481DCC9C85ebE478A1C0b69FCbb9", Decimals: 6},
}

// FindToken looks up a supported token by chain id and contract address.
// The address comparison is case-insensitive.
func FindToken(chainID, contractAddress string) (Token, bool) {
	for _, t := range SupportedTokens {
		if t.ChainID == chainID && strings.EqualFold(t.ContractAddress, contractAddress) {
			return t, true
		}
	}
	return Token{}, false
}

// TokensForChain returns the supported tokens of one chain ordered by symbol.
func TokensForChain(chainID string) []Token {
	var out []Token
	for _, t := range SupportedTokens {
		if t.ChainID == chainID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}
