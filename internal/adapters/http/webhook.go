package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/ebookgov/property-voice-agent/internal/core/domain"
)

// Voice platform message types that carry function invocations.
const (
	messageTypeFunctionCall = "function-call"
	messageTypeToolCalls    = "tool-calls"
)

type webhookEnvelope struct {
	Message webhookMessage `json:"message"`
}

type webhookMessage struct {
	Type         string               `json:"type"`
	FunctionCall *webhookFunctionCall `json:"functionCall,omitempty"`
	ToolCalls    []webhookToolCall    `json:"toolCalls,omitempty"`
}

type webhookFunctionCall struct {
	Name       string          `json:"name"`
	Parameters json.RawMessage `json:"parameters"`
}

type webhookToolCall struct {
	ID       string `json:"id"`
	Function struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	} `json:"function"`
}

type webhookResult struct {
	ToolCallID string `json:"toolCallId,omitempty"`
	Result     string `json:"result"`
}

type webhookResponse struct {
	Results []webhookResult `json:"results"`
}

func (rt *Router) voiceWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var env webhookEnvelope
	if err := decodeJSONBody(w, r, &env); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	switch env.Message.Type {
	case messageTypeFunctionCall:
		call := env.Message.FunctionCall
		if call == nil {
			writeError(w, http.StatusBadRequest, "functionCall is required")
			return
		}
		result := rt.dispatchFunction(r.Context(), call.Name, call.Parameters)
		writeJSON(w, http.StatusOK, webhookResponse{Results: []webhookResult{{Result: result}}})
	case messageTypeToolCalls:
		results := make([]webhookResult, 0, len(env.Message.ToolCalls))
		for _, call := range env.Message.ToolCalls {
			results = append(results, webhookResult{
				ToolCallID: call.ID,
				Result:     rt.dispatchFunction(r.Context(), call.Function.Name, call.Function.Arguments),
			})
		}
		writeJSON(w, http.StatusOK, webhookResponse{Results: results})
	default:
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// dispatchFunction runs one named function and always returns speakable text.
func (rt *Router) dispatchFunction(ctx context.Context, name string, raw json.RawMessage) string {
	args, err := decodeArguments(raw)
	if err != nil {
		rt.logger.Warn("voice_function_arguments_invalid", "function", name, "error", err)
		rt.recordFunctionCall(functionLabel(name), "invalid_arguments")
		return domain.FallbackVerifyAnswer
	}

	switch name {
	case "lookupProperty", "getPropertyDetails":
		return rt.callLookup(ctx, name, args)
	case "query_knowledge_base", "searchKnowledge":
		return rt.callKnowledge(ctx, name, args)
	case "searchProperties", "hybrid_search":
		return rt.callListingSearch(ctx, name, args)
	default:
		rt.logger.Warn("voice_function_unknown", "function", name)
		rt.recordFunctionCall("unknown", "unknown_function")
		return domain.UnknownFunctionAnswer
	}
}

func (rt *Router) callLookup(ctx context.Context, name string, args map[string]any) string {
	subject := firstString(args, "property_id", "propertyId", "address", "subject_id", "name")
	if subject == "" {
		rt.recordFunctionCall(name, "missing_subject")
		return domain.MissingSubjectAnswer
	}
	req := domain.PropertyFactRequest{
		SubjectID: subject,
		FactType:  firstString(args, "query_type", "fact_type", "queryType"),
	}

	resp, err := rt.services.Properties.Lookup(ctx, req)
	if err != nil || resp == nil {
		rt.logger.Error("voice_property_lookup_failed", "function", name, "subject_id", subject, "error", err)
		rt.recordFunctionCall(name, "error")
		return domain.FallbackVerifyAnswer
	}
	rt.recordFunctionCall(name, "ok")
	return resp.Data.Text
}

func (rt *Router) callKnowledge(ctx context.Context, name string, args map[string]any) string {
	topic := firstString(args, "topic", "category")
	query := firstString(args, "query", "question")
	if query == "" {
		query = topic
	}
	if query == "" {
		rt.recordFunctionCall(name, "missing_query")
		return domain.MissingQuestionAnswer
	}

	answer, err := rt.services.Knowledge.Search(ctx, domain.KnowledgeQuery{Query: query, Topic: topic})
	if err != nil || answer == nil {
		rt.logger.Error("voice_knowledge_search_failed", "function", name, "error", err)
		rt.recordFunctionCall(name, "error")
		return domain.FallbackVerifyAnswer
	}
	status := "ok"
	if answer.Degraded {
		status = "degraded"
	}
	rt.recordFunctionCall(name, status)
	return answer.Answer
}

const spokenListingLimit = 3

func (rt *Router) callListingSearch(ctx context.Context, name string, args map[string]any) string {
	query := firstString(args, "query", "address", "description")
	if query == "" {
		rt.recordFunctionCall(name, "missing_query")
		return domain.MissingQuestionAnswer
	}

	resp, err := rt.services.Listings.Search(ctx, domain.PropertySearchRequest{Query: query, TopK: spokenListingLimit})
	if err != nil || resp == nil {
		rt.logger.Error("voice_property_search_failed", "function", name, "error", err)
		rt.recordFunctionCall(name, "error")
		return domain.FallbackVerifyAnswer
	}
	rt.recordFunctionCall(name, "ok")
	return speakListings(resp.Results)
}

func speakListings(matches []domain.PropertyMatch) string {
	if len(matches) == 0 {
		return domain.NoListingsAnswer
	}
	described := make([]string, 0, len(matches))
	for _, m := range matches {
		name := m.Name
		if name == "" {
			name = "Property " + m.PropertyID
		}
		if m.Address != "" {
			name += " at " + m.Address
		}
		described = append(described, name)
	}
	if len(described) == 1 {
		return "The closest match is " + described[0] + "."
	}
	return fmt.Sprintf("I found %d listings: %s.", len(described), strings.Join(described, "; "))
}

// functionLabel bounds metric label values to the known function names.
func functionLabel(name string) string {
	switch name {
	case "lookupProperty", "getPropertyDetails", "query_knowledge_base", "searchKnowledge", "searchProperties", "hybrid_search":
		return name
	default:
		return "unknown"
	}
}

func (rt *Router) recordFunctionCall(function, status string) {
	if rt.metrics != nil {
		rt.metrics.RecordFunctionCall(function, status)
	}
}

// decodeArguments accepts arguments as a JSON object or as a string holding
// one, which is how tool-call payloads usually arrive.
func decodeArguments(raw json.RawMessage) (map[string]any, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return map[string]any{}, nil
	}
	if raw[0] == '"' {
		var encoded string
		if err := json.Unmarshal(raw, &encoded); err != nil {
			return nil, fmt.Errorf("decode argument string: %w", err)
		}
		if strings.TrimSpace(encoded) == "" {
			return map[string]any{}, nil
		}
		raw = []byte(encoded)
	}
	args := map[string]any{}
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("decode arguments: %w", err)
	}
	return args, nil
}

func firstString(args map[string]any, keys ...string) string {
	for _, key := range keys {
		v, ok := args[key]
		if !ok || v == nil {
			continue
		}
		var s string
		switch typed := v.(type) {
		case string:
			s = typed
		case float64, bool:
			s = fmt.Sprint(typed)
		default:
			continue
		}
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}
