// Command promocheck-mcp exposes a promocheck server as MCP tools over stdio.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/christianvidalwolf-prog/promochecker/config"
	"github.com/christianvidalwolf-prog/promochecker/detector"
	"github.com/christianvidalwolf-prog/promochecker/logging"
	"github.com/christianvidalwolf-prog/promochecker/models"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	// stdout carries the protocol.
	logging.Init(cfg.Log, os.Stderr)

	apiURL := os.Getenv("PROMOCHECK_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8080"
	}
	apiKey := os.Getenv("PROMOCHECK_API_KEY")
	if apiKey == "" {
		slog.Warn("PROMOCHECK_API_KEY is empty; requests only work against a server without auth")
	}

	s := newServer(newAPIClient(apiURL, apiKey))
	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func newServer(c *apiClient) *server.MCPServer {
	s := server.NewMCPServer(
		"promocheck",
		detector.PipelineVersion,
		server.WithToolCapabilities(false),
	)

	checkTool := mcp.NewTool("check_promotion",
		mcp.WithDescription("Check one Amazon product page for an active promotion (badge, coupon, price markdown) and return the current price, the normal price and the discount."),
		mcp.WithString("url",
			mcp.Description("Product page URL. Required unless asin is given."),
		),
		mcp.WithString("asin",
			mcp.Description("Product ASIN, expanded against the marketplace when url is empty"),
		),
		mcp.WithString("marketplace",
			mcp.Description("Storefront code or domain for asin, e.g. 'de' or 'amazon.es'"),
		),
	)
	s.AddTool(checkTool, handleCheck(c))

	batchTool := mcp.NewTool("check_promotions",
		mcp.WithDescription("Check many Amazon product pages one after another and return one promotion result per page, in input order. Pages are paced, so large lists take minutes."),
		mcp.WithArray("urls",
			mcp.Required(),
			mcp.Description("Product page URLs to check"),
		),
		mcp.WithString("marketplace",
			mcp.Description("Storefront code or domain used for ASIN entries"),
		),
	)
	s.AddTool(batchTool, handleBatch(c))

	return s
}

func handleCheck(c *apiClient) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		req := models.CheckRequest{
			URL:         request.GetString("url", ""),
			ASIN:        request.GetString("asin", ""),
			Marketplace: request.GetString("marketplace", ""),
		}
		if strings.TrimSpace(req.URL) == "" && strings.TrimSpace(req.ASIN) == "" {
			return mcp.NewToolResultError("url or asin is required"), nil
		}

		res, err := c.Check(ctx, req)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("check failed: %v", err)), nil
		}
		return mcp.NewToolResultText(formatResult(*res)), nil
	}
}

func handleBatch(c *apiClient) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		urls, err := request.RequireStringSlice("urls")
		if err != nil || len(urls) == 0 {
			return mcp.NewToolResultError("urls is required and must be a non-empty array of strings"), nil
		}

		status, err := c.Batch(ctx, models.BatchRequest{
			URLs:        urls,
			Marketplace: request.GetString("marketplace", ""),
		})
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("batch check failed: %v", err)), nil
		}
		return mcp.NewToolResultText(formatBatch(status)), nil
	}
}
