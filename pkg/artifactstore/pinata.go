package artifactstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// PinataPinner pins content to Pinata's IPFS pinning API. It is the
// production Pinner; tests use a fake instead.
type PinataPinner struct {
	baseURL    string
	httpClient *http.Client
}

// NewPinataPinner builds a PinataPinner against Pinata's public API.
func NewPinataPinner() *PinataPinner {
	return &PinataPinner{
		baseURL:    "https://api.pinata.cloud",
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

type pinataResponse struct {
	IPFSHash string `json:"IpfsHash"`
	Error    *struct {
		Reason string `json:"reason"`
	} `json:"error"`
}

// Pin implements Pinner by uploading content as a multipart file with
// pinataMetadata.keyvalues set from metadata.KeyValues, and
// cidVersion=1 as required by the upload contract.
func (p *PinataPinner) Pin(ctx context.Context, creds Credentials, content []byte, metadata PinMetadata) (string, error) {
	operation := func() (*pinataResponse, error) {
		body := &bytes.Buffer{}
		writer := multipart.NewWriter(body)

		part, err := writer.CreateFormFile("file", metadata.Name)
		if err != nil {
			return nil, backoff.Permanent(fmt.Errorf("artifactstore: create form file: %w", err))
		}
		if _, err := part.Write(content); err != nil {
			return nil, backoff.Permanent(fmt.Errorf("artifactstore: write content: %w", err))
		}

		pinataMeta, _ := json.Marshal(map[string]interface{}{
			"name":      metadata.Name,
			"keyvalues": metadata.KeyValues,
		})
		_ = writer.WriteField("pinataMetadata", string(pinataMeta))
		_ = writer.WriteField("pinataOptions", `{"cidVersion":1}`)

		if err := writer.Close(); err != nil {
			return nil, backoff.Permanent(fmt.Errorf("artifactstore: close multipart writer: %w", err))
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/pinning/pinFileToIPFS", body)
		if err != nil {
			return nil, backoff.Permanent(fmt.Errorf("artifactstore: build request: %w", err))
		}
		req.Header.Set("Content-Type", writer.FormDataContentType())
		req.Header.Set("pinata_api_key", creds.APIKey)
		req.Header.Set("pinata_secret_api_key", creds.APISecret)

		httpResp, err := p.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("artifactstore: pin request: %w", err)
		}
		defer httpResp.Body.Close()

		var decoded pinataResponse
		if err := json.NewDecoder(httpResp.Body).Decode(&decoded); err != nil {
			return nil, backoff.Permanent(fmt.Errorf("artifactstore: decode pin response: %w", err))
		}
		if httpResp.StatusCode >= 500 {
			return nil, fmt.Errorf("artifactstore: pinata server error %d", httpResp.StatusCode)
		}
		if httpResp.StatusCode != http.StatusOK {
			reason := "unknown"
			if decoded.Error != nil {
				reason = decoded.Error.Reason
			}
			return nil, backoff.Permanent(fmt.Errorf("artifactstore: pinata rejected upload (%d): %s", httpResp.StatusCode, reason))
		}
		return &decoded, nil
	}

	decoded, err := backoff.Retry(ctx, operation, backoff.WithMaxTries(3))
	if err != nil {
		return "", err
	}
	if decoded.IPFSHash == "" {
		return "", fmt.Errorf("artifactstore: pinata response missing IpfsHash")
	}
	return decoded.IPFSHash, nil
}
