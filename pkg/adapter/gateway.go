package adapter

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
)

// DefaultGatewayURL is the public gateway used when none is configured.
const DefaultGatewayURL = "https://w3s.link/ipfs"

type httpGateway struct {
	baseURL    string
	httpClient *http.Client
}

// NewGateway creates a Gateway that resolves CID/filename pairs over HTTP as
// GET {base}/{cid}/{filename}.
func NewGateway(baseURL string) Gateway {
	if baseURL == "" {
		baseURL = DefaultGatewayURL
	}
	return &httpGateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (x *httpGateway) Fetch(ctx context.Context, cid, filename string) ([]byte, error) {
	url := fmt.Sprintf("%s/%s/%s", x.baseURL, cid, filename)

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create request", goerr.V("url", url))
	}

	resp, err := x.httpClient.Do(req)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to fetch from gateway", goerr.V("url", url))
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, goerr.Wrap(ErrNotFound, "gateway returned 404",
			goerr.V("cid", cid), goerr.V("filename", filename))
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, goerr.New("gateway returned error",
			goerr.V("status", resp.StatusCode),
			goerr.V("url", url),
			goerr.V("body", string(body)))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read gateway response", goerr.V("url", url))
	}

	return data, nil
}
