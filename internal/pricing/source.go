package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
)

// LiteLLMURL is the public price list fetched by the remote tier.
const LiteLLMURL = "https://raw.githubusercontent.com/BerriAI/litellm/main/model_prices_and_context_window.json"

var errEmptyTable = errors.New("no usable price entries")

// priceEntry is one value of a LiteLLM-style document. Unknown fields are
// ignored so the full upstream document decodes.
type priceEntry struct {
	InputCostPerToken           *float64 `json:"input_cost_per_token"`
	OutputCostPerToken          *float64 `json:"output_cost_per_token"`
	CacheReadInputTokenCost     *float64 `json:"cache_read_input_token_cost"`
	CacheCreationInputTokenCost *float64 `json:"cache_creation_input_token_cost"`
}

// decodeTable parses a price document, keeping only entries that carry
// non-zero input and output rates. Entries that fail to decode are skipped.
func decodeTable(data []byte) (Table, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode price table: %w", err)
	}

	table := make(Table, len(raw))
	for key, msg := range raw {
		var e priceEntry
		if err := json.Unmarshal(msg, &e); err != nil {
			continue
		}
		if e.InputCostPerToken == nil || e.OutputCostPerToken == nil {
			continue
		}
		if *e.InputCostPerToken == 0 || *e.OutputCostPerToken == 0 {
			continue
		}
		p := ModelPrice{
			InputCostPerToken:  *e.InputCostPerToken,
			OutputCostPerToken: *e.OutputCostPerToken,
		}
		if e.CacheReadInputTokenCost != nil {
			p.CacheReadInputTokenCost = *e.CacheReadInputTokenCost
		}
		if e.CacheCreationInputTokenCost != nil {
			p.CacheCreationInputTokenCost = *e.CacheCreationInputTokenCost
		}
		table[key] = p
	}

	if len(table) == 0 {
		return nil, errEmptyTable
	}
	return table, nil
}

func readTableFile(path string) (Table, error) {
	if path == "" {
		return nil, fmt.Errorf("read price file: %w", os.ErrNotExist)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read price file: %w", err)
	}
	return decodeTable(data)
}

func fetchTable(ctx context.Context, client *http.Client, url string) (Table, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch prices: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch prices: HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return decodeTable(data)
}
