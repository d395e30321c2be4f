package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/m-mizutani/goerr/v2"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/catalpa-io/mnemo/pkg/model"
	"github.com/catalpa-io/mnemo/pkg/usecase/memory"
)

type createParams struct {
	Collection string         `json:"collection" jsonschema:"Collection to store the memory in"`
	RoomID     string         `json:"room_id,omitempty" jsonschema:"Room discriminator"`
	AgentID    string         `json:"agent_id,omitempty" jsonschema:"Agent discriminator"`
	Content    map[string]any `json:"content" jsonschema:"Opaque memory content"`
	EmbedText  string         `json:"embed_text,omitempty" jsonschema:"Text to embed for similarity search"`
}

type getParams struct {
	Collection string `json:"collection" jsonschema:"Collection to read"`
	RoomID     string `json:"room_id,omitempty" jsonschema:"Filter by room"`
	AgentID    string `json:"agent_id,omitempty" jsonschema:"Filter by agent"`
	Unique     bool   `json:"unique,omitempty" jsonschema:"Only records flagged unique"`
	Count      int    `json:"count,omitempty" jsonschema:"Maximum number of memories to return"`
}

type searchParams struct {
	Collection string  `json:"collection" jsonschema:"Collection to search"`
	Query      string  `json:"query" jsonschema:"Text to search for by similarity"`
	Threshold  float64 `json:"threshold,omitempty" jsonschema:"Minimum cosine similarity (default 0.8)"`
	Count      int     `json:"count,omitempty" jsonschema:"Maximum number of matches (default 10)"`
	RoomID     string  `json:"room_id,omitempty" jsonschema:"Filter matches by room"`
}

type removeParams struct {
	Collection string `json:"collection" jsonschema:"Collection holding the memory"`
	ID         string `json:"id" jsonschema:"Memory id to retract"`
}

// Serve runs a stdio MCP server exposing the memory operations as tools.
// It blocks until the transport closes or ctx is cancelled.
func Serve(ctx context.Context, uc *memory.UseCase) error {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "mnemo",
		Version: "0.1.0",
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "memory_create",
		Description: "Store a memory record in a collection on the content-addressed network",
	}, func(ctx context.Context, req *mcp.CallToolRequest, params *createParams) (*mcp.CallToolResult, any, error) {
		entry, err := uc.Create(ctx, memory.CreateInput{
			Collection: params.Collection,
			Memory: &model.Memory{
				RoomID:  params.RoomID,
				AgentID: params.AgentID,
				Content: params.Content,
			},
			EmbedText: params.EmbedText,
		})
		if err != nil {
			return nil, nil, err
		}
		return textResult(fmt.Sprintf("stored memory %s (cid %s)", entry.ID, entry.CID)), nil, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "memory_get",
		Description: "List memories of a collection, newest first, filtered by room and agent",
	}, func(ctx context.Context, req *mcp.CallToolRequest, params *getParams) (*mcp.CallToolResult, any, error) {
		memories, err := uc.Get(ctx, memory.GetInput{
			Collection: params.Collection,
			RoomID:     params.RoomID,
			AgentID:    params.AgentID,
			Unique:     params.Unique,
			Count:      params.Count,
		})
		if err != nil {
			return nil, nil, err
		}
		return jsonResult(memories)
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "memory_search",
		Description: "Search a collection's memories by vector similarity to a text query",
	}, func(ctx context.Context, req *mcp.CallToolRequest, params *searchParams) (*mcp.CallToolResult, any, error) {
		threshold := params.Threshold
		if threshold == 0 {
			threshold = 0.8
		}
		count := params.Count
		if count == 0 {
			count = 10
		}

		results, err := uc.Search(ctx, memory.SearchInput{
			Collection: params.Collection,
			Query:      params.Query,
			Threshold:  threshold,
			Count:      count,
			RoomID:     params.RoomID,
		})
		if err != nil {
			return nil, nil, err
		}
		return jsonResult(results)
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "memory_remove",
		Description: "Retract a memory from its collection and evict it from hot storage",
	}, func(ctx context.Context, req *mcp.CallToolRequest, params *removeParams) (*mcp.CallToolResult, any, error) {
		if err := uc.Remove(ctx, params.Collection, model.MemoryID(params.ID)); err != nil {
			return nil, nil, err
		}
		return textResult(fmt.Sprintf("removed memory %s", params.ID)), nil, nil
	})

	return server.Run(ctx, &mcp.StdioTransport{})
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

func jsonResult(v any) (*mcp.CallToolResult, any, error) {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, nil, goerr.Wrap(err, "failed to marshal result")
	}
	return textResult(string(raw)), nil, nil
}
