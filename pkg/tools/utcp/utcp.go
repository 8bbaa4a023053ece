// Package utcp imports tools discovered through a UTCP client into a
// tools.Registry.
package utcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	utcp "github.com/universal-tool-calling-protocol/go-utcp"
	utcptools "github.com/universal-tool-calling-protocol/go-utcp/src/tools"

	"github.com/Protocol-Lattice/recall/internal/logging"
	"github.com/Protocol-Lattice/recall/pkg/tools"
)

var ErrDiscovery = goerr.New("utcp tool discovery failed", goerr.ID("UTCP_DISCOVERY"))

// Client is the subset of the UTCP client used here.
type Client interface {
	SearchTools(query string, limit int) ([]utcptools.Tool, error)
	CallTool(ctx context.Context, toolName string, args map[string]any) (any, error)
}

// Connect builds a UTCP client from a providers file.
func Connect(ctx context.Context, providersFile string) (utcp.UtcpClientInterface, error) {
	client, err := utcp.NewUTCPClient(ctx, &utcp.UtcpClientConfig{ProvidersFilePath: providersFile}, nil, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create UTCP client", goerr.V("providers", providersFile))
	}
	return client, nil
}

// Import registers every tool returned by SearchTools(query, limit). Tools
// whose names clash with existing entries are skipped and logged. It returns
// the names that were registered.
func Import(ctx context.Context, registry *tools.Registry, client Client, query string, limit int) ([]string, error) {
	found, err := client.SearchTools(query, limit)
	if err != nil {
		return nil, ErrDiscovery.Wrap(goerr.Wrap(err, "search failed"), goerr.V("query", query))
	}
	logger := logging.From(ctx)

	var names []string
	for _, remote := range found {
		tool := Convert(client, remote)
		if err := registry.Register(tool); err != nil {
			logger.Warn("skipping UTCP tool", "tool", remote.Name, "error", err)
			continue
		}
		names = append(names, tool.Name)
	}
	logger.Info("imported UTCP tools", "count", len(names), "query", query)
	return names, nil
}

// Convert maps a UTCP tool definition onto a registry entry whose handler
// calls back into client.
func Convert(client Client, remote utcptools.Tool) tools.Tool {
	remoteName := remote.Name
	return tools.Tool{
		Name:        remoteName,
		Description: remote.Description,
		Params:      params(remote.Inputs),
		Handler: func(ctx context.Context, args tools.Args) (string, error) {
			out, err := client.CallTool(ctx, remoteName, args.Map())
			if err != nil {
				return "", err
			}
			return render(out)
		},
	}
}

func params(schema utcptools.ToolInputOutputSchema) []tools.Param {
	required := make(map[string]bool, len(schema.Required))
	for _, name := range schema.Required {
		required[name] = true
	}

	names := make([]string, 0, len(schema.Properties))
	for name := range schema.Properties {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]tools.Param, 0, len(names))
	for _, name := range names {
		p := tools.Param{Name: name, Type: tools.TypeString, Required: required[name]}
		if prop, ok := schema.Properties[name].(map[string]any); ok {
			p.Type = paramType(prop["type"])
			p.Description, _ = prop["description"].(string)
			if enum, ok := prop["enum"].([]any); ok && p.Type == tools.TypeString {
				for _, e := range enum {
					if s, ok := e.(string); ok {
						p.Enum = append(p.Enum, s)
					}
				}
			}
		}
		out = append(out, p)
	}
	return out
}

func paramType(raw any) tools.ParamType {
	s, _ := raw.(string)
	switch t := tools.ParamType(strings.ToLower(s)); t {
	case tools.TypeNumber, tools.TypeInteger, tools.TypeBoolean:
		return t
	default:
		return tools.TypeString
	}
}

func render(out any) (string, error) {
	switch v := out.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case fmt.Stringer:
		return v.String(), nil
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return "", goerr.Wrap(err, "failed to encode tool result")
		}
		return string(raw), nil
	}
}
