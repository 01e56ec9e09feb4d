// internal/verify/oracle.go
package verify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Oracle answers whether a contract's source is verified. Lookups may
// be slow or rate-limited; failures are transient.
type Oracle interface {
	IsVerified(ctx context.Context, address common.Address) (bool, error)
}

// HTTPOracle talks to an Etherscan-style contract-verification API.
type HTTPOracle struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewHTTPOracle(baseURL, apiKey string) *HTTPOracle {
	return &HTTPOracle{
		baseURL: baseURL,
		apiKey:  apiKey,
		client: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

type abiResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Result  string `json:"result"`
}

// IsVerified asks the API for the contract ABI; a verified contract
// has one, an unverified contract returns a NOTOK status.
func (o *HTTPOracle) IsVerified(ctx context.Context, address common.Address) (bool, error) {
	params := url.Values{}
	params.Set("module", "contract")
	params.Set("action", "getabi")
	params.Set("address", address.Hex())
	if o.apiKey != "" {
		params.Set("apikey", o.apiKey)
	}

	reqURL := o.baseURL + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return false, err
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("oracle status %d", resp.StatusCode)
	}

	var body abiResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false, err
	}

	// Status "1" means the ABI is available, i.e. the source is
	// verified. "0" with a "not verified" message is a definitive no.
	return body.Status == "1", nil
}
