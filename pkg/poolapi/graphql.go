package poolapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	gql "github.com/graphql-go/graphql"

	"github.com/arcdb/pagepool/pkg/bufferpool"
)

// graphqlRequest is the shape of a GraphQL-over-HTTP POST body, matching
// the teacher codebase's own GraphQLRequest.
type graphqlRequest struct {
	Query         string                 `json:"query"`
	OperationName string                 `json:"operationName"`
	Variables     map[string]interface{} `json:"variables"`
}

// buildSchema constructs a read-only schema over two queries: poolStats
// (the pool-wide occupancy snapshot) and frame(index) (a single slot's
// state). There are no mutations; the admin surface never writes to the
// pool, only the public bufferpool API does.
func buildSchema(pool *bufferpool.Manager) (gql.Schema, error) {
	statsType := gql.NewObject(gql.ObjectConfig{
		Name:        "PoolStats",
		Description: "Point-in-time occupancy of the buffer pool",
		Fields: gql.Fields{
			"capacity":  &gql.Field{Type: gql.NewNonNull(gql.Int)},
			"resident":  &gql.Field{Type: gql.NewNonNull(gql.Int)},
			"free":      &gql.Field{Type: gql.NewNonNull(gql.Int)},
			"pinned":    &gql.Field{Type: gql.NewNonNull(gql.Int)},
			"evictable": &gql.Field{Type: gql.NewNonNull(gql.Int)},
			"hits":      &gql.Field{Type: gql.NewNonNull(gql.Int)},
			"misses":    &gql.Field{Type: gql.NewNonNull(gql.Int)},
			"evictions": &gql.Field{Type: gql.NewNonNull(gql.Int)},
		},
	})

	frameType := gql.NewObject(gql.ObjectConfig{
		Name:        "Frame",
		Description: "State of a single buffer pool slot",
		Fields: gql.Fields{
			"index":    &gql.Field{Type: gql.NewNonNull(gql.Int)},
			"resident": &gql.Field{Type: gql.NewNonNull(gql.Boolean)},
			"pageId":   &gql.Field{Type: gql.NewNonNull(gql.Int)},
			"pinned":   &gql.Field{Type: gql.NewNonNull(gql.Boolean)},
			"dirty":    &gql.Field{Type: gql.NewNonNull(gql.Boolean)},
		},
	})

	queryType := gql.NewObject(gql.ObjectConfig{
		Name: "Query",
		Fields: gql.Fields{
			"poolStats": &gql.Field{
				Type: gql.NewNonNull(statsType),
				Resolve: func(p gql.ResolveParams) (interface{}, error) {
					return pool.Stats(), nil
				},
			},
			"frame": &gql.Field{
				Type: frameType,
				Args: gql.FieldConfigArgument{
					"index": &gql.ArgumentConfig{Type: gql.NewNonNull(gql.Int)},
				},
				Resolve: func(p gql.ResolveParams) (interface{}, error) {
					idx, _ := p.Args["index"].(int)
					info, ok := pool.Frame(idx)
					if !ok {
						return nil, fmt.Errorf("no frame at index %d", idx)
					}
					return info, nil
				},
			},
		},
	})

	return gql.NewSchema(gql.SchemaConfig{Query: queryType})
}

// graphqlHandler serves POST /graphql against the schema built by
// buildSchema.
type graphqlHandler struct {
	schema gql.Schema
}

func newGraphQLHandler(pool *bufferpool.Manager) (*graphqlHandler, error) {
	schema, err := buildSchema(pool)
	if err != nil {
		return nil, fmt.Errorf("pagepool: build graphql schema: %w", err)
	}
	return &graphqlHandler{schema: schema}, nil
}

func (h *graphqlHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "GraphQL only accepts POST requests", http.StatusMethodNotAllowed)
		return
	}

	var req graphqlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"errors": []map[string]string{{"message": "invalid request body"}},
		})
		return
	}

	result := gql.Do(gql.Params{
		Schema:         h.schema,
		RequestString:  req.Query,
		VariableValues: req.Variables,
		OperationName:  req.OperationName,
		Context:        r.Context(),
	})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(result)
}
