package mintclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/satchelwallet/satchel/api/cashu"
)

// RestClient talks the Cashu REST protocol to remote mints. One client serves
// every mint; the mint url comes in per call.
type RestClient struct {
	client *http.Client
}

func NewRestClient() *RestClient {
	return &RestClient{
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *RestClient) mintRequest(ctx context.Context, method string, url string, reqBody any, responseType any) error {
	var body io.Reader
	if reqBody != nil {
		jsonBytes, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("json.Marshal: %w", err)
		}
		body = bytes.NewBuffer(jsonBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("http.NewRequestWithContext: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("c.client.Do(req): %w", err)
	}

	respBody, err := io.ReadAll(resp.Body)
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("error", err))
		}
	}()
	if err != nil {
		return fmt.Errorf("io.ReadAll: %w", err)
	}

	if resp.StatusCode >= 400 {
		errorResponse := cashu.ErrorResponse{}
		if err := json.Unmarshal(respBody, &errorResponse); err != nil {
			return fmt.Errorf("mint returned status %v. body: %s", resp.StatusCode, respBody)
		}
		return errorResponse
	}

	if err := json.Unmarshal(respBody, &responseType); err != nil {
		return fmt.Errorf("json.Unmarshal: %w", err)
	}

	return nil
}

func (c *RestClient) ActiveKeys(ctx context.Context, mintUrl string) (cashu.KeysetKeys, error) {
	var keysResponse cashu.KeysResponse
	err := c.mintRequest(ctx, http.MethodGet, mintUrl+"/v1/keys", nil, &keysResponse)
	if err != nil {
		return cashu.KeysetKeys{}, fmt.Errorf(`c.mintRequest(ctx, http.MethodGet, mintUrl+"/v1/keys", nil, &keysResponse): %w`, err)
	}

	for _, keyset := range keysResponse.Keysets {
		if keyset.Unit == cashu.Sat.String() {
			return keyset, nil
		}
	}

	return cashu.KeysetKeys{}, ErrNoActiveSatKeyset
}

// Swap trades the inputs for fresh proofs of the same total value. The old
// secrets become known to the mint in the exchange, which is exactly what
// makes the new proofs offline spendable.
func (c *RestClient) Swap(ctx context.Context, mintUrl string, inputs []cashu.ProofData) ([]cashu.ProofData, error) {
	keys, err := c.ActiveKeys(ctx, mintUrl)
	if err != nil {
		return nil, fmt.Errorf("c.ActiveKeys(ctx, mintUrl): %w", err)
	}

	amount := uint64(0)
	for _, input := range inputs {
		amount += input.Amount
	}

	outputs, err := newBlindOutputs(amount, keys.Id)
	if err != nil {
		return nil, fmt.Errorf("newBlindOutputs(amount, keys.Id): %w", err)
	}

	var swapResponse cashu.PostSwapResponse
	swapRequest := cashu.PostSwapRequest{
		Inputs:  inputs,
		Outputs: blindedMessages(outputs),
	}
	err = c.mintRequest(ctx, http.MethodPost, mintUrl+"/v1/swap", swapRequest, &swapResponse)
	if err != nil {
		return nil, fmt.Errorf(`c.mintRequest(ctx, http.MethodPost, mintUrl+"/v1/swap", swapRequest, &swapResponse): %w`, err)
	}

	return proofDataFromSignatures(swapResponse.Signatures, outputs, keys)
}

func (c *RestClient) RequestMintQuote(ctx context.Context, mintUrl string, amount uint64) (cashu.PostMintQuoteBolt11Response, error) {
	var quoteResponse cashu.PostMintQuoteBolt11Response
	quoteRequest := cashu.PostMintQuoteBolt11Request{
		Amount: amount,
		Unit:   cashu.Sat.String(),
	}

	err := c.mintRequest(ctx, http.MethodPost, mintUrl+"/v1/mint/quote/bolt11", quoteRequest, &quoteResponse)
	if err != nil {
		return quoteResponse, fmt.Errorf(`c.mintRequest(ctx, http.MethodPost, mintUrl+"/v1/mint/quote/bolt11", quoteRequest, &quoteResponse): %w`, err)
	}

	return quoteResponse, nil
}

func (c *RestClient) MintProofs(ctx context.Context, mintUrl string, quote string, amount uint64) ([]cashu.ProofData, error) {
	keys, err := c.ActiveKeys(ctx, mintUrl)
	if err != nil {
		return nil, fmt.Errorf("c.ActiveKeys(ctx, mintUrl): %w", err)
	}

	outputs, err := newBlindOutputs(amount, keys.Id)
	if err != nil {
		return nil, fmt.Errorf("newBlindOutputs(amount, keys.Id): %w", err)
	}

	var mintResponse cashu.PostMintBolt11Response
	mintRequest := cashu.PostMintBolt11Request{
		Quote:   quote,
		Outputs: blindedMessages(outputs),
	}
	err = c.mintRequest(ctx, http.MethodPost, mintUrl+"/v1/mint/bolt11", mintRequest, &mintResponse)
	if err != nil {
		return nil, fmt.Errorf(`c.mintRequest(ctx, http.MethodPost, mintUrl+"/v1/mint/bolt11", mintRequest, &mintResponse): %w`, err)
	}

	return proofDataFromSignatures(mintResponse.Signatures, outputs, keys)
}

func (c *RestClient) ClientType() Backend {
	return REST
}
