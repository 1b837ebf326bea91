//-------------------------------------------------------------------------
//
// pgEdge Librarian Server
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package server

import (
	"net/http"
)

// OpenAPISpec represents the OpenAPI v3 specification.
type OpenAPISpec struct {
	OpenAPI    string                 `json:"openapi"`
	Info       OpenAPIInfo            `json:"info"`
	Servers    []OpenAPIServer        `json:"servers"`
	Paths      map[string]OpenAPIPath `json:"paths"`
	Components OpenAPIComponents      `json:"components"`
}

// OpenAPIInfo contains API metadata.
type OpenAPIInfo struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Version     string `json:"version"`
}

// OpenAPIServer describes a server.
type OpenAPIServer struct {
	URL         string `json:"url"`
	Description string `json:"description"`
}

// OpenAPIPath contains operations for a path.
type OpenAPIPath struct {
	Get    *OpenAPIOperation `json:"get,omitempty"`
	Post   *OpenAPIOperation `json:"post,omitempty"`
	Put    *OpenAPIOperation `json:"put,omitempty"`
	Delete *OpenAPIOperation `json:"delete,omitempty"`
}

// OpenAPIOperation describes an API operation.
type OpenAPIOperation struct {
	Summary     string                     `json:"summary"`
	Description string                     `json:"description,omitempty"`
	OperationID string                     `json:"operationId"`
	Tags        []string                   `json:"tags,omitempty"`
	Parameters  []OpenAPIParameter         `json:"parameters,omitempty"`
	RequestBody *OpenAPIRequestBody        `json:"requestBody,omitempty"`
	Responses   map[string]OpenAPIResponse `json:"responses"`
}

// OpenAPIParameter describes a parameter.
type OpenAPIParameter struct {
	Name        string        `json:"name"`
	In          string        `json:"in"`
	Description string        `json:"description,omitempty"`
	Required    bool          `json:"required"`
	Schema      OpenAPISchema `json:"schema"`
}

// OpenAPIRequestBody describes a request body.
type OpenAPIRequestBody struct {
	Description string                      `json:"description,omitempty"`
	Required    bool                        `json:"required"`
	Content     map[string]OpenAPIMediaType `json:"content"`
}

// OpenAPIResponse describes a response.
type OpenAPIResponse struct {
	Description string                      `json:"description"`
	Content     map[string]OpenAPIMediaType `json:"content,omitempty"`
}

// OpenAPIMediaType describes a media type.
type OpenAPIMediaType struct {
	Schema OpenAPISchema `json:"schema"`
}

// OpenAPISchema describes a schema.
type OpenAPISchema struct {
	Type        string                   `json:"type,omitempty"`
	Format      string                   `json:"format,omitempty"`
	Description string                   `json:"description,omitempty"`
	Properties  map[string]OpenAPISchema `json:"properties,omitempty"`
	Items       *OpenAPISchema           `json:"items,omitempty"`
	Required    []string                 `json:"required,omitempty"`
	Default     any                      `json:"default,omitempty"`
	Ref         string                   `json:"$ref,omitempty"`
}

// OpenAPIComponents contains reusable components.
type OpenAPIComponents struct {
	Schemas map[string]OpenAPISchema `json:"schemas"`
}

// handleOpenAPI handles the GET /v1/openapi.json endpoint.
func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	spec := BuildOpenAPISpec()
	s.respondJSON(w, http.StatusOK, spec)
}

// jsonBody references a component schema as application/json content.
func jsonBody(schema string) map[string]OpenAPIMediaType {
	return map[string]OpenAPIMediaType{
		"application/json": {
			Schema: OpenAPISchema{Ref: "#/components/schemas/" + schema},
		},
	}
}

// withErrors adds error responses for the given status codes.
func withErrors(responses map[string]OpenAPIResponse, errs map[string]string) map[string]OpenAPIResponse {
	for code, desc := range errs {
		responses[code] = OpenAPIResponse{Description: desc, Content: jsonBody("ErrorResponse")}
	}
	return responses
}

// pipelineErrors are the failures shared by the chat and search endpoints.
func pipelineErrors() map[string]string {
	return map[string]string{
		"400": "Invalid request, or blocked by content safety (MODERATION_BLOCKED)",
		"502": "The language model failed or returned no choices",
		"503": "Embedding or retrieval is unavailable",
		"500": "Server error",
	}
}

// BuildOpenAPISpec constructs the OpenAPI v3 specification.
// This is exported so it can be used to generate static documentation.
func BuildOpenAPISpec() OpenAPISpec {
	return OpenAPISpec{
		OpenAPI: "3.0.3",
		Info: OpenAPIInfo{
			Title:       "pgEdge Librarian Server API",
			Description: "REST API for grounded book recommendations, illustrations and speech tokens",
			Version:     "1.0.0",
		},
		Servers: []OpenAPIServer{
			{
				URL:         "/v1",
				Description: "API v1",
			},
		},
		Paths: map[string]OpenAPIPath{
			"/health": {
				Get: &OpenAPIOperation{
					Summary:     "Health check",
					Description: "Check if the server is running and healthy",
					OperationID: "getHealth",
					Tags:        []string{"System"},
					Responses: map[string]OpenAPIResponse{
						"200": {Description: "Server is healthy", Content: jsonBody("HealthResponse")},
					},
				},
			},
			"/chat": {
				Post: &OpenAPIOperation{
					Summary: "Recommend a book",
					Description: "Moderate the query, retrieve candidate books and answer with one " +
						"recommendation grounded in the retrieved summaries",
					OperationID: "chat",
					Tags:        []string{"Library"},
					RequestBody: &OpenAPIRequestBody{
						Required: true,
						Content:  jsonBody("ChatRequest"),
					},
					Responses: withErrors(map[string]OpenAPIResponse{
						"200": {Description: "Recommendation", Content: jsonBody("ChatResponse")},
					}, pipelineErrors()),
				},
			},
			"/search": {
				Post: &OpenAPIOperation{
					Summary:     "Search the library",
					Description: "Moderate the query and return ranked candidate books without generation",
					OperationID: "search",
					Tags:        []string{"Library"},
					RequestBody: &OpenAPIRequestBody{
						Required: true,
						Content:  jsonBody("SearchRequest"),
					},
					Responses: withErrors(map[string]OpenAPIResponse{
						"200": {Description: "Ranked candidates", Content: jsonBody("SearchResponse")},
					}, pipelineErrors()),
				},
			},
			"/image": {
				Post: &OpenAPIOperation{
					Summary: "Illustrate a request",
					Description: "Generate an illustration. A rejected prompt is retried once with a " +
						"theme-only prompt; blocked and failed outcomes return 200 with ok=false",
					OperationID: "illustrate",
					Tags:        []string{"Illustration"},
					RequestBody: &OpenAPIRequestBody{
						Required: true,
						Content:  jsonBody("ImageRequest"),
					},
					Responses: withErrors(map[string]OpenAPIResponse{
						"200": {Description: "Cascade outcome", Content: jsonBody("ImageResponse")},
					}, map[string]string{
						"400": "Invalid request, or blocked by content safety (MODERATION_BLOCKED)",
						"500": "Server error",
					}),
				},
			},
			"/speech/token": {
				Get:  speechTokenOperation("getSpeechToken"),
				Post: speechTokenOperation("issueSpeechToken"),
			},
		},
		Components: OpenAPIComponents{
			Schemas: map[string]OpenAPISchema{
				"HealthResponse": {
					Type: "object",
					Properties: map[string]OpenAPISchema{
						"status": {Type: "string", Description: "Health status"},
					},
					Required: []string{"status"},
				},
				"ChatRequest": {
					Type: "object",
					Properties: map[string]OpenAPISchema{
						"q": {Type: "string", Description: "What the reader is looking for"},
					},
					Required: []string{"q"},
				},
				"ChatResponse": {
					Type: "object",
					Properties: map[string]OpenAPISchema{
						"hits": {
							Type:        "array",
							Description: "Candidates the answer was grounded on, in rank order",
							Items:       &OpenAPISchema{Ref: "#/components/schemas/Candidate"},
						},
						"answer": {Type: "string", Description: "The recommendation"},
					},
					Required: []string{"hits", "answer"},
				},
				"SearchRequest": {
					Type: "object",
					Properties: map[string]OpenAPISchema{
						"q":     {Type: "string", Description: "Search query"},
						"top_k": {Type: "integer", Description: "Override the default number of hits"},
						"themes": {
							Type:        "array",
							Description: "Only return books sharing at least one of these themes",
							Items:       &OpenAPISchema{Type: "string"},
						},
					},
					Required: []string{"q"},
				},
				"SearchResponse": {
					Type: "object",
					Properties: map[string]OpenAPISchema{
						"hits": {
							Type:  "array",
							Items: &OpenAPISchema{Ref: "#/components/schemas/Candidate"},
						},
					},
					Required: []string{"hits"},
				},
				"Candidate": {
					Type: "object",
					Properties: map[string]OpenAPISchema{
						"id":            {Type: "string", Description: "Book identifier"},
						"title":         {Type: "string", Description: "Book title"},
						"summary_short": {Type: "string", Description: "Short summary"},
						"themes": {
							Type:  "array",
							Items: &OpenAPISchema{Type: "string"},
						},
					},
					Required: []string{"id", "title"},
				},
				"ImageRequest": {
					Type: "object",
					Properties: map[string]OpenAPISchema{
						"query": {Type: "string", Description: "What to illustrate"},
						"kind": {
							Type:        "string",
							Description: "cover (default), scene or theme",
						},
						"style": {
							Type:        "string",
							Description: "illustration, digital, oil, watercolor, photoreal or pixel",
							Default:     "illustration",
						},
					},
					Required: []string{"query"},
				},
				"ImageResponse": {
					Type: "object",
					Properties: map[string]OpenAPISchema{
						"ok":          {Type: "boolean", Description: "Whether an image was produced"},
						"image":       {Type: "string", Description: "PNG data URL"},
						"prompt_used": {Type: "string", Description: "Prompt of the final attempt"},
						"size":        {Type: "string"},
						"model":       {Type: "string"},
						"attempt":     {Type: "integer", Description: "1 or 2"},
						"state":       {Type: "string", Description: "success, blocked or failed"},
						"note":        {Type: "string", Description: "generic-soft when the fallback prompt was used"},
						"message":     {Type: "string", Description: "User-facing text when ok is false"},
					},
					Required: []string{"ok", "attempt", "state"},
				},
				"SpeechTokenResponse": {
					Type: "object",
					Properties: map[string]OpenAPISchema{
						"token":  {Type: "string", Description: "Short-lived speech service token"},
						"region": {Type: "string", Description: "Speech service region"},
					},
					Required: []string{"token", "region"},
				},
				"ErrorResponse": {
					Type: "object",
					Properties: map[string]OpenAPISchema{
						"error": {Ref: "#/components/schemas/ErrorDetail"},
					},
					Required: []string{"error"},
				},
				"ErrorDetail": {
					Type: "object",
					Properties: map[string]OpenAPISchema{
						"code":    {Type: "string", Description: "Error code"},
						"message": {Type: "string", Description: "Error message"},
					},
					Required: []string{"code", "message"},
				},
			},
		},
	}
}

func speechTokenOperation(id string) *OpenAPIOperation {
	return &OpenAPIOperation{
		Summary:     "Issue a speech token",
		Description: "Return a cached short-lived token for the speech service. Responses are not cacheable",
		OperationID: id,
		Tags:        []string{"Speech"},
		Responses: withErrors(map[string]OpenAPIResponse{
			"200": {Description: "Token", Content: jsonBody("SpeechTokenResponse")},
		}, map[string]string{
			"404": "Speech is not enabled",
			"502": "The speech service is unavailable",
		}),
	}
}
