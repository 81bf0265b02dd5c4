package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rmax-ai/proximl/pkg/client"
)

// parseParams converts repeated key=value flags into query parameters.
func parseParams(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	params := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid parameter %q, expected key=value", pair)
		}
		params[key] = value
	}
	return params, nil
}

func newQueryCmd(a *app) *cobra.Command {
	var (
		params []string
		body   string
	)

	cmd := &cobra.Command{
		Use:   "query <METHOD> <PATH>",
		Short: "Send a raw request through the API client",
		Long: `Send a raw request to the proximl API.

Authentication, project scoping and gateway retries are applied as for any
other command.

Examples:
  proximl query GET /dataset
  proximl query GET /job --param status=running
  proximl query PATCH /dataset/ds-1 --body '{"name":"renamed"}'`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := parseParams(params)
			if err != nil {
				return err
			}
			req := client.Request{
				Method: strings.ToUpper(args[0]),
				Path:   args[1],
				Params: p,
			}
			if body != "" {
				if !json.Valid([]byte(body)) {
					return fmt.Errorf("--body is not valid JSON")
				}
				req.Body = json.RawMessage(body)
			}

			px, err := a.api(cmd.Context())
			if err != nil {
				return err
			}
			result, err := px.API.Query(cmd.Context(), req)
			if err != nil {
				return err
			}
			return a.render(cmd, result, nil)
		},
	}

	cmd.Flags().StringArrayVarP(&params, "param", "p", []string{}, "Query parameter (key=value), can be repeated")
	cmd.Flags().StringVarP(&body, "body", "b", "", "JSON request body")
	return cmd
}
