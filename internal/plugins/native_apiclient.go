package plugins

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
)

const apiClientTimeout = 30 * time.Second

// apiClient performs HTTP requests for agents. Hosts that resolve to
// loopback, private or link-local addresses are refused so agents cannot
// probe the orchestrator's own network.
type apiClient struct {
	spec   ToolSpec
	client *http.Client
}

func newAPIClient() Entry {
	ac := &apiClient{
		client: &http.Client{Timeout: apiClientTimeout},
		spec: ToolSpec{
			Name:        "api_client",
			Description: "Make an HTTP GET or POST request to a public URL. Returns the status code and response body.",
			Parameters: map[string]ParamSpec{
				"url": {
					Type:        "string",
					Description: "Target URL (http or https).",
					Required:    true,
				},
				"method": {
					Type:        "string",
					Description: "HTTP method.",
					Enum:        []string{"GET", "POST"},
					Default:     "GET",
				},
				"body": {
					Type:        "string",
					Description: "Request body, for POST.",
				},
				"content_type": {
					Type:        "string",
					Description: "Content-Type header for POST.",
					Default:     "application/json",
				},
			},
		},
	}
	return Entry{Spec: ac.spec, Tool: ac}
}

func (ac *apiClient) Info(_ context.Context) (*schema.ToolInfo, error) {
	return toolSpecToToolInfo(&ac.spec), nil
}

type apiClientArgs struct {
	URL         string `json:"url"`
	Method      string `json:"method"`
	Body        string `json:"body"`
	ContentType string `json:"content_type"`
}

func (ac *apiClient) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	var args apiClientArgs
	if err := json.Unmarshal([]byte(argumentsInJSON), &args); err != nil {
		return errorResult(CodeInvalidArguments, "parse arguments: %v", err), nil
	}
	if args.URL == "" {
		return errorResult(CodeInvalidArguments, "url is required"), nil
	}

	method := strings.ToUpper(args.Method)
	if method == "" {
		method = http.MethodGet
	}
	if method != http.MethodGet && method != http.MethodPost {
		return errorResult(CodeInvalidArguments, "unsupported method %q", method), nil
	}

	if reason := refuseURL(args.URL); reason != "" {
		return errorResult(CodePermissionDenied, "%s", reason), nil
	}

	var body io.Reader
	if method == http.MethodPost && args.Body != "" {
		body = strings.NewReader(args.Body)
	}

	req, err := http.NewRequestWithContext(ctx, method, args.URL, body)
	if err != nil {
		return errorResult(CodeInvalidArguments, "build request: %v", err), nil
	}
	if method == http.MethodPost {
		contentType := args.ContentType
		if contentType == "" {
			contentType = "application/json"
		}
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := ac.client.Do(req)
	if err != nil {
		return errorResult(CodeExecutionFailed, "request failed: %v", err), nil
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxToolOutput+1))
	if err != nil {
		return errorResult(CodeExecutionFailed, "read response: %v", err), nil
	}

	return jsonResult(map[string]any{
		"status_code": resp.StatusCode,
		"body":        truncate(string(data)),
	}), nil
}

// refuseURL returns a non-empty reason when the URL must not be fetched.
func refuseURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Hostname() == "" {
		return "invalid URL: " + rawURL
	}

	host := u.Hostname()
	ips, err := net.LookupIP(host)
	if err != nil {
		return "cannot resolve host " + host
	}
	for _, ip := range ips {
		if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsUnspecified() {
			return "refusing request to non-public address " + ip.String()
		}
	}
	return ""
}

var _ tool.InvokableTool = (*apiClient)(nil)
