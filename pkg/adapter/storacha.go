package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
)

// DefaultStorachaURL is the HTTP bridge endpoint of the hot-storage network.
const DefaultStorachaURL = "https://up.storacha.network/bridge"

// storachaClient uploads content through the storage network's HTTP bridge.
// Writing requires an agent signing key and a delegation proof authorizing
// this agent to write to a space; both are checked at construction so a
// misconfigured client fails before any write is attempted.
type storachaClient struct {
	baseURL    string
	agentKey   string
	proof      string
	httpClient *http.Client
}

// NewStoracha creates a BlobStore backed by the storage network bridge.
func NewStoracha(baseURL, agentKey, proof string) (BlobStore, error) {
	if agentKey == "" {
		return nil, goerr.New("agent signing key is required")
	}
	if proof == "" {
		return nil, goerr.New("delegation proof is required")
	}
	if baseURL == "" {
		baseURL = DefaultStorachaURL
	}

	return &storachaClient{
		baseURL:  strings.TrimRight(baseURL, "/"),
		agentKey: agentKey,
		proof:    proof,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}, nil
}

type uploadResponse struct {
	CID string `json:"cid"`
}

func (x *storachaClient) Upload(ctx context.Context, files []File) (string, error) {
	if len(files) == 0 {
		return "", goerr.New("no files to upload")
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, f := range files {
		part, err := mw.CreateFormFile("file", f.Name)
		if err != nil {
			return "", goerr.Wrap(err, "failed to create multipart field", goerr.V("name", f.Name))
		}
		if _, err := part.Write(f.Data); err != nil {
			return "", goerr.Wrap(err, "failed to write multipart field", goerr.V("name", f.Name))
		}
	}
	if err := mw.Close(); err != nil {
		return "", goerr.Wrap(err, "failed to finalize multipart body")
	}

	req, err := http.NewRequestWithContext(ctx, "POST", x.baseURL+"/upload", &body)
	if err != nil {
		return "", goerr.Wrap(err, "failed to create upload request")
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	x.authorize(req)

	resp, err := x.httpClient.Do(req)
	if err != nil {
		return "", goerr.Wrap(err, "failed to upload to storage bridge")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		return "", goerr.New("storage bridge rejected upload",
			goerr.V("status", resp.StatusCode),
			goerr.V("body", string(respBody)))
	}

	var result uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", goerr.Wrap(err, "failed to decode upload response")
	}
	if result.CID == "" {
		return "", goerr.New("storage bridge returned empty CID")
	}

	return result.CID, nil
}

// Remove evicts a CID from the network's hot storage. This revokes
// discoverability through this store only; the content may remain
// retrievable by any party already holding the CID.
func (x *storachaClient) Remove(ctx context.Context, cid string) error {
	url := fmt.Sprintf("%s/remove/%s", x.baseURL, cid)
	req, err := http.NewRequestWithContext(ctx, "DELETE", url, nil)
	if err != nil {
		return goerr.Wrap(err, "failed to create remove request", goerr.V("cid", cid))
	}
	x.authorize(req)

	resp, err := x.httpClient.Do(req)
	if err != nil {
		return goerr.Wrap(err, "failed to request removal", goerr.V("cid", cid))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		respBody, _ := io.ReadAll(resp.Body)
		return goerr.New("storage bridge rejected removal",
			goerr.V("status", resp.StatusCode),
			goerr.V("cid", cid),
			goerr.V("body", string(respBody)))
	}

	return nil
}

func (x *storachaClient) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+x.agentKey)
	req.Header.Set("X-Delegation-Proof", x.proof)
}
