package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// apiResponse mirrors the fonfetch API response envelope.
type apiResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Count   int             `json:"count"`
	Source  string          `json:"source"`
	Timing  struct {
		TotalMs int64 `json:"total_ms"`
	} `json:"timing"`
	Error *struct {
		Code          string `json:"code"`
		Message       string `json:"message"`
		CorrelationID string `json:"correlationId"`
	} `json:"error"`
}

func main() {
	apiURL := os.Getenv("FONFETCH_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8080"
	}
	apiKey := os.Getenv("FONFETCH_API_KEY")

	s := server.NewMCPServer(
		"fonfetch",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	fundCode := mcp.WithString("code",
		mcp.Required(),
		mcp.Description("TEFAS fund code, e.g. 'AAK' or 'TTE'"),
	)
	startDate := mcp.WithString("start",
		mcp.Required(),
		mcp.Description("Start date, 'YYYY-MM-DD' or 'DD.MM.YYYY'"),
	)
	endDate := mcp.WithString("end",
		mcp.Required(),
		mcp.Description("End date, 'YYYY-MM-DD' or 'DD.MM.YYYY'"),
	)

	getFundTool := mcp.NewTool("get_fund",
		mcp.WithDescription("Look up a Turkish investment fund on TEFAS: name, umbrella type and 1/3/6-month, 1/3/5-year and year-to-date returns."),
		fundCode,
	)
	s.AddTool(getFundTool, handleGetFund(apiURL, apiKey))

	getNavTool := mcp.NewTool("get_fund_nav",
		mcp.WithDescription("Daily price (NAV), outstanding shares, holder count and total value of a TEFAS fund over a date range."),
		fundCode, startDate, endDate,
	)
	s.AddTool(getNavTool, handleGetNav(apiURL, apiKey))

	getPerformanceTool := mcp.NewTool("get_fund_performance",
		mcp.WithDescription("Return of a TEFAS fund over a date range, as reported by the portal's fund comparison."),
		fundCode, startDate, endDate,
	)
	s.AddTool(getPerformanceTool, handleGetPerformance(apiURL, apiKey))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

// apiGet sends a GET request to the fonfetch API and decodes the envelope.
func apiGet(ctx context.Context, client *http.Client, apiURL, apiKey, path string, query url.Values) (*apiResponse, error) {
	target := apiURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	var out apiResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("parse response (HTTP %d): %w", resp.StatusCode, err)
	}
	return &out, nil
}

// toolResult renders an API envelope as a tool result: pretty JSON data on
// success, the coded error otherwise.
func toolResult(what string, resp *apiResponse) *mcp.CallToolResult {
	if !resp.Success {
		errMsg := what + " failed"
		if resp.Error != nil {
			errMsg = fmt.Sprintf("[%s] %s", resp.Error.Code, resp.Error.Message)
			if resp.Error.CorrelationID != "" {
				errMsg += " (correlation id " + resp.Error.CorrelationID + ")"
			}
		}
		return mcp.NewToolResultError(errMsg)
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, resp.Data, "", "  "); err != nil {
		pretty.Write(resp.Data)
	}
	header := fmt.Sprintf("Source: %s, %d ms", resp.Source, resp.Timing.TotalMs)
	if resp.Count > 1 {
		header += fmt.Sprintf(", %d records", resp.Count)
	}
	return mcp.NewToolResultText(header + "\n\n" + pretty.String())
}

func fundPath(code string, suffix string) string {
	return "/api/v1/funds/" + url.PathEscape(strings.ToUpper(strings.TrimSpace(code))) + suffix
}

func handleGetFund(apiURL, apiKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 180 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		code, err := request.RequireString("code")
		if err != nil {
			return mcp.NewToolResultError("code is required"), nil
		}

		resp, err := apiGet(ctx, client, apiURL, apiKey, fundPath(code, ""), nil)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("fund request failed: %v", err)), nil
		}
		return toolResult("fund lookup", resp), nil
	}
}

// rangeHandler serves the tools that take a code and a date range.
func rangeHandler(apiURL, apiKey, suffix, what string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 180 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		code, err := request.RequireString("code")
		if err != nil {
			return mcp.NewToolResultError("code is required"), nil
		}
		start, err := request.RequireString("start")
		if err != nil {
			return mcp.NewToolResultError("start is required"), nil
		}
		end, err := request.RequireString("end")
		if err != nil {
			return mcp.NewToolResultError("end is required"), nil
		}

		query := url.Values{"start": {start}, "end": {end}}
		resp, err := apiGet(ctx, client, apiURL, apiKey, fundPath(code, suffix), query)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("%s request failed: %v", what, err)), nil
		}
		return toolResult(what, resp), nil
	}
}

func handleGetNav(apiURL, apiKey string) server.ToolHandlerFunc {
	return rangeHandler(apiURL, apiKey, "/nav", "NAV history")
}

func handleGetPerformance(apiURL, apiKey string) server.ToolHandlerFunc {
	return rangeHandler(apiURL, apiKey, "/performance", "performance")
}
