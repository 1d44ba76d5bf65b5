package summarizer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"fuelshift/backend/internal/domain"
)

const (
	apiVersion = "2023-06-01"
	maxTokens  = 400
)

type AnthropicClient struct {
	httpClient *resty.Client
	model      string
}

func NewAnthropicClient(apiKey string, baseURL string, model string, timeout time.Duration) *AnthropicClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetHeader("x-api-key", apiKey).
		SetHeader("anthropic-version", apiVersion).
		SetHeader("content-type", "application/json").
		SetTimeout(timeout)

	return &AnthropicClient{httpClient: client, model: model}
}

type messageRequest struct {
	Model     string        `json:"model"`
	MaxTokens int           `json:"max_tokens"`
	System    string        `json:"system"`
	Messages  []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messageResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
}

const systemPrompt = `You are an assistant for a fuel station manager. Given the figures of one closed attendant shift, write a short plain-text report of at most five sentences. State litres sold per fuel, total revenue, expected cash and whether the drawer is in excess or short and by how much. Flag any nozzle whose closing reading is below its opening reading. Do not invent figures.`

func (c *AnthropicClient) Summarize(ctx context.Context, req domain.SummaryRequest) (string, error) {
	reqBody := messageRequest{
		Model:     c.model,
		MaxTokens: maxTokens,
		System:    systemPrompt,
		Messages:  []chatMessage{{Role: "user", Content: BuildPrompt(req)}},
	}

	var respBody messageResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(reqBody).
		SetResult(&respBody).
		Post("/v1/messages")
	if err != nil {
		return "", fmt.Errorf("anthropic api call: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("anthropic api error: status %d", resp.StatusCode())
	}

	parts := make([]string, 0, len(respBody.Content))
	for _, block := range respBody.Content {
		if text := strings.TrimSpace(block.Text); text != "" {
			parts = append(parts, text)
		}
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("empty response from ai")
	}
	return strings.Join(parts, "\n"), nil
}

// BuildPrompt renders the shift figures with grouped thousands so the model
// echoes them back in the same form.
func BuildPrompt(req domain.SummaryRequest) string {
	p := message.NewPrinter(language.English)
	var b strings.Builder

	p.Fprintf(&b, "Attendant: %s\n", req.AttendantName)
	p.Fprintf(&b, "Prices per litre: petrol %.2f, diesel %.2f\n", req.Prices.Petrol, req.Prices.Diesel)
	b.WriteString("Nozzles:\n")
	for _, r := range req.Readings {
		p.Fprintf(&b, "- %s (%s): opening %.2f, closing %.2f\n", r.Name, r.Type, r.Opening, r.Closing)
	}
	p.Fprintf(&b, "Test litres returned: petrol %.2f, diesel %.2f\n", req.Financials.TestLitersPetrol, req.Financials.TestLitersDiesel)
	p.Fprintf(&b, "Expenses %.2f, credits %.2f, recoveries %.2f, cash on hand %.2f\n",
		req.Financials.Expenses, req.Financials.Credits, req.Financials.Recoveries, req.Financials.CashOnHand)

	s := req.Summary
	p.Fprintf(&b, "Sold: petrol %.2f L, diesel %.2f L\n", s.PetrolSold, s.DieselSold)
	p.Fprintf(&b, "Billable: petrol %.2f L, diesel %.2f L\n", s.NetBillablePetrol, s.NetBillableDiesel)
	p.Fprintf(&b, "Total revenue %.2f, net expected cash %.2f, variance %.2f (%s)\n",
		s.TotalRevenue, s.NetExpectedCash, s.Variance, s.Status)
	return b.String()
}
