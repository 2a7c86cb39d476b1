package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/prasenjit/go-oasmock/internal/app"
	"github.com/prasenjit/go-oasmock/internal/logging"
	"github.com/prasenjit/go-oasmock/internal/models"
	"github.com/prasenjit/go-oasmock/internal/storage"
)

var generateCmd = &cobra.Command{
	Use:   "generate METHOD PATH",
	Short: "Print the mocked response for one request",
	Long: `Runs the planner and generator for a single request without starting a
server, and prints the status, content type and body.

PATH may carry a query string. Example:

  oasmock generate GET /pets/42 --status 404 --strategy schema-examples,jsf`,
	Args: cobra.ExactArgs(2),
	RunE: runGenerate,
}

var (
	genStatus   int
	genMedia    string
	genStrategy string
	genHeaders  []string
)

func init() {
	generateCmd.Flags().IntVar(&genStatus, "status", 0, "Response status to mock")
	generateCmd.Flags().StringVar(&genMedia, "media", "", "Response media type to mock")
	generateCmd.Flags().StringVar(&genStrategy, "strategy", "", "Comma-separated strategy order")
	generateCmd.Flags().StringArrayVarP(&genHeaders, "header", "H", nil, "Request header as name:value (repeatable)")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.Mock.Enable = true
	if genStrategy != "" {
		if _, err := models.ParseStrategyOrder(strings.Split(genStrategy, ",")); err != nil {
			return err
		}
	}

	logger := logging.Nop()
	if cfg.Mock.Debug {
		logger = app.NewLogger(cfg)
	}

	svc, store, err := app.NewMockService(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	req, err := generateRequest(args[0], args[1])
	if err != nil {
		return err
	}

	op := svc.Resolve(req)
	if op == nil {
		return fmt.Errorf("no operation matches %s %s", req.Method, req.Path)
	}

	plan := svc.TryPlan(req, op, nil)
	result, err := svc.Generate(cmd.Context(), req, op, plan)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if result == nil {
		fmt.Fprintf(out, "%s: not mocked, the request would pass through\n", op.Key())
		return nil
	}

	body, err := result.Encode()
	if err != nil {
		return fmt.Errorf("encode body: %w", err)
	}
	if storage.IsJSONMediaType(result.MediaType) {
		var pretty bytes.Buffer
		if json.Indent(&pretty, body, "", "  ") == nil {
			body = pretty.Bytes()
		}
	}

	fmt.Fprintf(out, "%s -> %d %s (%s)\n", op.Key(), result.Status, result.MediaType, result.Source)
	if len(body) > 0 {
		fmt.Fprintln(out, string(body))
	}
	return nil
}

// generateRequest builds the request and turns the flags into mock hint
// headers, the same ones a client may send.
func generateRequest(method, target string) (*models.Request, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("invalid path %q: %w", target, err)
	}
	if u.Path == "" {
		u.Path = "/"
	}

	header := http.Header{}
	for _, h := range genHeaders {
		name, value, ok := strings.Cut(h, ":")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("invalid header %q, expected name:value", h)
		}
		header.Add(strings.TrimSpace(name), strings.TrimSpace(value))
	}

	header.Set(models.HeaderMockEnable, "true")
	if genStatus != 0 {
		header.Set(models.HeaderMockStatus, strconv.Itoa(genStatus))
	}
	if genMedia != "" {
		header.Set(models.HeaderMockMedia, genMedia)
	}
	if genStrategy != "" {
		header.Set(models.HeaderMockStrategyOrder, genStrategy)
	}

	return &models.Request{
		Method: strings.ToUpper(method),
		Path:   u.Path,
		Query:  u.Query(),
		Header: header,
	}, nil
}
