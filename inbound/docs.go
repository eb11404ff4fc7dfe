package inbound

import (
	"context"
	"sort"
	"strings"

	"github.com/goliatone/go-webhooks/core"
)

const openAPIVersion = "3.0.3"

type OpenAPIDocument struct {
	OpenAPI    string                     `json:"openapi"`
	Info       OpenAPIInfo                `json:"info"`
	Paths      map[string]OpenAPIPathItem `json:"paths"`
	Components OpenAPIComponents          `json:"components"`
	Security   []map[string][]string      `json:"security"`
}

type OpenAPIInfo struct {
	Title       string `json:"title"`
	Version     string `json:"version"`
	Description string `json:"description,omitempty"`
}

type OpenAPIPathItem struct {
	Get  *OpenAPIOperation `json:"get,omitempty"`
	Post *OpenAPIOperation `json:"post,omitempty"`
}

type OpenAPIOperation struct {
	OperationID string                     `json:"operationId"`
	Summary     string                     `json:"summary,omitempty"`
	Parameters  []OpenAPIParameter         `json:"parameters"`
	Responses   map[string]OpenAPIResponse `json:"responses"`
}

type OpenAPIParameter struct {
	Name        string            `json:"name"`
	In          string            `json:"in"`
	Required    bool              `json:"required"`
	Description string            `json:"description,omitempty"`
	Schema      map[string]string `json:"schema"`
}

type OpenAPIResponse struct {
	Description string `json:"description"`
}

type OpenAPIComponents struct {
	SecuritySchemes map[string]OpenAPISecurityScheme `json:"securitySchemes"`
}

type OpenAPISecurityScheme struct {
	Type         string `json:"type"`
	In           string `json:"in,omitempty"`
	Name         string `json:"name,omitempty"`
	Scheme       string `json:"scheme,omitempty"`
	BearerFormat string `json:"bearerFormat,omitempty"`
}

// Docs describes every active action. basePath is the mount point of the
// HTTP surface, "/webhooks" when empty.
func (r *Router) Docs(ctx context.Context, title string, basePath string) (OpenAPIDocument, error) {
	actions, err := r.actions.ListActions(ctx)
	if err != nil {
		return OpenAPIDocument{}, err
	}
	return BuildOpenAPI(actions, r.config, title, basePath), nil
}

func BuildOpenAPI(actions []core.ActionDefinition, cfg core.InboundConfig, title string, basePath string) OpenAPIDocument {
	basePath = "/" + strings.Trim(strings.TrimSpace(basePath), "/")
	if basePath == "/" {
		basePath = "/webhooks"
	}
	if strings.TrimSpace(title) == "" {
		title = "webhooks"
	}
	apiKeyParam := strings.TrimSpace(cfg.APIKeyParam)
	if apiKeyParam == "" {
		apiKeyParam = core.DefaultConfig().Inbound.APIKeyParam
	}

	sorted := make([]core.ActionDefinition, 0, len(actions))
	for _, action := range actions {
		if action.Active {
			sorted = append(sorted, action)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	doc := OpenAPIDocument{
		OpenAPI: openAPIVersion,
		Info:    OpenAPIInfo{Title: title, Version: "1.0.0"},
		Paths:   map[string]OpenAPIPathItem{},
		Components: OpenAPIComponents{SecuritySchemes: map[string]OpenAPISecurityScheme{
			"apiKey": {Type: "apiKey", In: "query", Name: apiKeyParam},
			"bearer": {Type: "http", Scheme: "bearer", BearerFormat: "JWT"},
		}},
		Security: []map[string][]string{{"apiKey": {}}, {"bearer": {}}},
	}
	for _, action := range sorted {
		params := make([]OpenAPIParameter, 0, len(action.Parameters))
		for _, parameter := range action.Parameters {
			params = append(params, OpenAPIParameter{
				Name:        parameter.Name,
				In:          "query",
				Required:    parameter.Required,
				Description: parameter.Description,
				Schema:      map[string]string{"type": "string"},
			})
		}
		doc.Paths[basePath+"/"+action.Name] = OpenAPIPathItem{
			Get:  actionOperation(action, "get", params),
			Post: actionOperation(action, "post", params),
		}
	}
	return doc
}

func actionOperation(action core.ActionDefinition, method string, params []OpenAPIParameter) *OpenAPIOperation {
	return &OpenAPIOperation{
		OperationID: method + "_" + action.Name,
		Summary:     action.Description,
		Parameters:  params,
		Responses: map[string]OpenAPIResponse{
			"200": {Description: "action output"},
			"401": {Description: "missing, invalid or unauthorized credentials"},
			"404": {Description: "unknown action"},
			"500": {Description: "missing parameter or handler failure"},
		},
	}
}
