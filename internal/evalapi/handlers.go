package evalapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"github.com/rafaeljc/heimdall-go/internal/logger"
	"github.com/rafaeljc/heimdall-go/internal/ruleengine"
	"github.com/rafaeljc/heimdall-go/internal/schema"
)

// handleEvaluate processes the POST /api/v1/evaluate request.
//
// Responsibilities:
// 1. Decodes the payload, keeping numbers lossless (integer vs double).
// 2. Sanitizes and validates it.
// 3. Builds a typed default and context (declared field types apply).
// 4. Evaluates against the active snapshot.
func (a *API) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	// 1. Decode Request
	var req EvaluateRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, a.config.MaxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		log.Warn("invalid json payload", slog.String("error", err.Error()))
		render.Status(r, status)
		render.JSON(w, r, ErrorResponse{
			Code:    "ERR_INVALID_JSON",
			Message: "Invalid JSON payload: " + err.Error(),
		})
		return
	}

	// 2. Sanitize & Validate
	req.Sanitize()
	if errResp := req.Validate(); errResp != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, errResp)
		return
	}

	r = r.WithContext(logger.With(r.Context(), slog.String("flag_key", req.FlagKey)))
	log = logger.FromContext(r.Context())

	set := a.snapshots.Snapshot()
	types := a.fieldTypes(set)

	// 3. Typed default and context
	def, errResp := buildDefault(req.Type, req.Default)
	if errResp != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, errResp)
		return
	}

	evalCtx, errResp := buildContext(req.Context, types)
	if errResp != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, errResp)
		return
	}

	// 4. Evaluate
	res := a.engine.Evaluate(req.FlagKey, def, set, evalCtx)

	log.Debug("flag evaluated",
		slog.String("reason", string(res.Reason)),
		slog.String("variant", res.Variant),
	)

	render.Status(r, http.StatusOK)
	render.JSON(w, r, EvaluateResponse{
		FlagKey:  req.FlagKey,
		Value:    res.Value.Interface(),
		Variant:  res.Variant,
		Reason:   string(res.Reason),
		Metadata: res.Metadata,
	})
}

// handleListFlags processes GET /api/v1/flags.
func (a *API) handleListFlags(w http.ResponseWriter, r *http.Request) {
	set := a.snapshots.Snapshot()

	resp := FlagsResponse{Keys: set.Keys()}
	if resp.Keys == nil {
		resp.Keys = []string{}
	}
	if set != nil && !set.UpdatedAt.IsZero() {
		at := set.UpdatedAt
		resp.UpdatedAt = &at
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, resp)
}

func (a *API) fieldTypes(set *ruleengine.FlagSet) ruleengine.FieldTypes {
	var types ruleengine.FieldTypes
	if set != nil {
		types = set.FieldTypes
	}
	return types.Merge(a.config.FieldTypes)
}

// buildDefault converts the JSON default into a Value of the requested kind.
func buildDefault(kindName string, raw any) (ruleengine.Value, *ErrorResponse) {
	kind, err := ruleengine.ParseKind(kindName)
	if err != nil || kind == ruleengine.KindSemver || kind == ruleengine.KindArray {
		return ruleengine.Value{}, &ErrorResponse{
			Code:    "ERR_INVALID_INPUT",
			Message: fmt.Sprintf("Unsupported type %q", kindName),
			Details: []ErrorDetail{{Field: "type", Issue: "must be one of boolean, string, integer, double, object"}},
		}
	}

	def, err := schema.FromInterface(raw, kind)
	if err != nil || def.Kind() != kind {
		issue := "does not match type " + kind.String()
		if err != nil {
			issue = err.Error()
		}
		return ruleengine.Value{}, &ErrorResponse{
			Code:    "ERR_INVALID_INPUT",
			Message: "Default value does not match the requested type",
			Details: []ErrorDetail{{Field: "default", Issue: issue}},
		}
	}
	return def, nil
}

// buildContext types every attribute, honoring the declared field types.
func buildContext(in EvaluationContext, types ruleengine.FieldTypes) (ruleengine.Context, *ErrorResponse) {
	attrs := make(map[string]ruleengine.Value, len(in.Attributes))
	var details []ErrorDetail

	for field, raw := range in.Attributes {
		v, err := schema.FromInterface(raw, types.Lookup(field))
		if err != nil {
			details = append(details, ErrorDetail{Field: "context.attributes." + field, Issue: err.Error()})
			continue
		}
		attrs[field] = v
	}

	if len(details) > 0 {
		return ruleengine.Context{}, &ErrorResponse{
			Code:    "ERR_INVALID_INPUT",
			Message: "Invalid context attributes",
			Details: details,
		}
	}
	return ruleengine.Context{TargetingKey: in.TargetingKey, Attributes: attrs}, nil
}
