package report

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// EmailClient posts rendered reports to the email relay service, which
// formats and sends the actual mail. Authentication is a static key in
// the API_KEY header.
type EmailClient struct {
	baseURL string
	key     string
	client  *http.Client
}

// NewEmailClient creates a relay client. baseURL is the service root
// without the /emailReport/ path.
func NewEmailClient(baseURL, key string, client *http.Client) *EmailClient {
	return &EmailClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		key:     key,
		client:  client,
	}
}

// EmailRequest is one report submission. To, CC and BCC are
// comma-separated address lists; ReportName and TableTitle steer the
// relay's template selection and are optional.
type EmailRequest struct {
	Subject    string
	To         string
	CC         string
	BCC        string
	Body       string
	ReportName string
	TableTitle string
}

// Send submits the report to the relay.
func (c *EmailClient) Send(ctx context.Context, req EmailRequest) error {
	form := url.Values{}
	form.Set("subject", req.Subject)
	form.Set("to", req.To)
	if req.CC != "" {
		form.Set("cc", req.CC)
	}
	if req.BCC != "" {
		form.Set("bcc", req.BCC)
	}
	form.Set("body", req.Body)
	if req.ReportName != "" {
		form.Set("report_name", req.ReportName)
	}
	if req.TableTitle != "" {
		form.Set("table_title", req.TableTitle)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/emailReport/", strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build email request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("API_KEY", c.key)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("post email report: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("email relay returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	return nil
}
