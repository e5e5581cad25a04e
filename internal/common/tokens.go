package common

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"chatwallet/internal/chain"
	"chatwallet/internal/models"

	"gopkg.in/yaml.v2"
)

type TokenConfig struct {
	Symbol   string `yaml:"symbol"`
	Family   string `yaml:"family"`
	Address  string `yaml:"address"`
	Decimals int32  `yaml:"decimals"`
}

type TokensConfig struct {
	Tokens []TokenConfig `yaml:"tokens"`
}

// LoadTokenConfig reads extra tradable tokens from a yaml file. A missing
// file is not an error: the built-in token list is used alone.
func LoadTokenConfig(tokensFile string) (map[models.ChainFamily][]chain.Token, error) {
	var tokensPath string
	if filepath.IsAbs(tokensFile) {
		tokensPath = tokensFile
	} else {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		tokensPath = filepath.Join(wd, tokensFile)
	}

	data, err := os.ReadFile(tokensPath)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", tokensFile, err)
	}

	return ParseTokenConfig(data)
}

func ParseTokenConfig(data []byte) (map[models.ChainFamily][]chain.Token, error) {
	var config TokensConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("unable to parse token config: %w", err)
	}

	out := make(map[models.ChainFamily][]chain.Token)
	for i, t := range config.Tokens {
		if t.Symbol == "" {
			return nil, fmt.Errorf("token at index %d missing symbol", i)
		}
		family, ok := chain.ParseFamily(t.Family)
		if !ok {
			return nil, fmt.Errorf("token %s has unknown family %q", t.Symbol, t.Family)
		}
		if t.Address == "" {
			return nil, fmt.Errorf("token %s missing address", t.Symbol)
		}
		if !chain.ValidateAddress(family, t.Address) {
			return nil, fmt.Errorf("token %s has invalid %s address %q", t.Symbol, family, t.Address)
		}
		if t.Decimals < 0 || t.Decimals > 36 {
			return nil, fmt.Errorf("token %s has invalid decimals %d", t.Symbol, t.Decimals)
		}
		out[family] = append(out[family], chain.Token{
			Symbol:   strings.ToUpper(t.Symbol),
			Address:  t.Address,
			Decimals: t.Decimals,
		})
	}

	return out, nil
}
