package dataapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/rafaeljc/mimir/internal/logger"
	"github.com/rafaeljc/mimir/internal/ruledoc"
	"github.com/rafaeljc/mimir/internal/ruleengine"
)

// handleListModels processes GET /api/v1/models.
func (a *API) handleListModels(w http.ResponseWriter, r *http.Request) {
	bundle, ok := a.activeBundle(w, r)
	if !ok {
		return
	}

	resp := ModelsResponse{
		Revision: bundle.Revision,
		LoadedAt: bundle.LoadedAt,
		Models:   make([]ModelInfo, 0, len(bundle.Models)),
		Keys:     make([]KeyInfo, 0, bundle.Registry.Len()),
	}
	for _, name := range bundle.ModelNames() {
		m, _ := bundle.Model(name)
		resp.Models = append(resp.Models, modelInfo(m))
	}
	for _, id := range bundle.Registry.Keys() {
		resp.Keys = append(resp.Keys, KeyInfo{Name: id.Name(), Type: ruledoc.TypeName(id.Type())})
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, resp)
}

// handleDescribeModel processes GET /api/v1/models/{model}.
func (a *API) handleDescribeModel(w http.ResponseWriter, r *http.Request) {
	bundle, ok := a.activeBundle(w, r)
	if !ok {
		return
	}
	m, ok := a.model(w, r, bundle)
	if !ok {
		return
	}

	resp := ModelResponse{
		ModelInfo: modelInfo(m),
		Revision:  bundle.Revision,
		Rules:     make(map[string][]string),
	}
	for _, id := range m.Keys() {
		rules := m.Rules(id)
		descs := make([]string, len(rules))
		for i, rule := range rules {
			descs[i] = rule.String()
		}
		resp.Rules[id.Name()] = descs
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, resp)
}

// handleResolve processes POST /api/v1/models/{model}/resolve.
//
// Responsibilities:
// 1. Decodes the request, keeping numbers exact.
// 2. Applies the overrides to a fresh context on the requested model.
// 3. Resolves every requested key and reports where each value came from.
func (a *API) handleResolve(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	bundle, ok := a.activeBundle(w, r)
	if !ok {
		return
	}
	m, ok := a.model(w, r, bundle)
	if !ok {
		return
	}

	// 1. Decode Request
	var req ResolveRequest
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		log.Warn("invalid json payload", slog.String("error", err.Error()))
		writeError(w, r, http.StatusBadRequest, ErrorResponse{
			Code:    CodeInvalidJSON,
			Message: "Invalid JSON payload: " + err.Error(),
		})
		return
	}

	keys, errResp := a.requestedKeys(bundle, req.Keys)
	if errResp != nil {
		writeError(w, r, http.StatusBadRequest, *errResp)
		return
	}

	// 2. Apply Overrides
	c := a.engine.NewContext(m)
	if errResp := applyOverrides(c, bundle.Registry, req.Overrides); errResp != nil {
		writeError(w, r, http.StatusBadRequest, *errResp)
		return
	}

	// 3. Resolve
	resp := ResolveResponse{
		Revision: bundle.Revision,
		Model:    m.Name(),
		Values:   make(map[string]ResolvedValue, len(keys)),
	}
	for _, id := range keys {
		res := c.Trace(id)

		var rerr *ruleengine.RecursionError
		if errors.As(res.Err, &rerr) {
			log.Warn("recursion limit exceeded",
				slog.String("model", m.Name()),
				slog.String("key", id.Name()),
				slog.Int("limit", rerr.Limit),
			)
			writeError(w, r, http.StatusUnprocessableEntity, ErrorResponse{
				Code:    CodeRecursionLimit,
				Message: rerr.Error(),
				Details: []ErrorDetail{{Field: id.Name(), Issue: "resolution did not terminate"}},
			})
			return
		}

		value := ResolvedValue{Value: res.Value, Source: res.Source.String(), Model: res.Model}
		if res.Err != nil {
			value.Warning = res.Err.Error()
		}
		resp.Values[id.Name()] = value
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, resp)
}

// activeBundle writes 503 while no bundle has been loaded.
func (a *API) activeBundle(w http.ResponseWriter, r *http.Request) (*ruledoc.Bundle, bool) {
	bundle := a.bundles.Bundle()
	if bundle == nil {
		writeError(w, r, http.StatusServiceUnavailable, ErrorResponse{
			Code:    CodeNotReady,
			Message: "No rule bundle has been loaded yet",
		})
		return nil, false
	}
	return bundle, true
}

// model writes 404 when the path names a model the bundle lacks.
func (a *API) model(w http.ResponseWriter, r *http.Request, bundle *ruledoc.Bundle) (*ruleengine.Model, bool) {
	name := chi.URLParam(r, "model")
	m, ok := bundle.Model(name)
	if !ok {
		writeError(w, r, http.StatusNotFound, ErrorResponse{
			Code:    CodeModelNotFound,
			Message: fmt.Sprintf("Model %q does not exist", name),
		})
		return nil, false
	}
	return m, true
}

func (a *API) requestedKeys(bundle *ruledoc.Bundle, names []string) ([]ruleengine.KeyID, *ErrorResponse) {
	if len(names) == 0 {
		// every key, but never a silently shortened list
		all := bundle.Registry.Keys()
		if len(all) > a.config.MaxKeysPerRequest {
			msg := fmt.Sprintf("The bundle declares %d keys; name at most %d keys explicitly",
				len(all), a.config.MaxKeysPerRequest)
			return nil, &ErrorResponse{Code: CodeInvalidInput, Message: msg}
		}
		return all, nil
	}
	if len(names) > a.config.MaxKeysPerRequest {
		return nil, &ErrorResponse{
			Code:    CodeInvalidInput,
			Message: fmt.Sprintf("At most %d keys may be resolved per request", a.config.MaxKeysPerRequest),
		}
	}

	ids := make([]ruleengine.KeyID, 0, len(names))
	var details []ErrorDetail
	for _, name := range names {
		id, ok := bundle.Registry.Lookup(name)
		if !ok {
			details = append(details, ErrorDetail{Field: name, Issue: "unknown key"})
			continue
		}
		if !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	if len(details) > 0 {
		return nil, &ErrorResponse{Code: CodeUnknownKey, Message: "Unknown keys requested", Details: details}
	}
	return ids, nil
}

func applyOverrides(c *ruleengine.Context, registry *ruleengine.Registry, overrides map[string]any) *ErrorResponse {
	var details []ErrorDetail
	for _, name := range slices.Sorted(maps.Keys(overrides)) {
		id, ok := registry.Lookup(name)
		if !ok {
			details = append(details, ErrorDetail{Field: name, Issue: "unknown key"})
			continue
		}
		v, err := ruledoc.Coerce(overrides[name], id.Type())
		if err == nil {
			err = c.SetValue(id, v)
		}
		if err != nil {
			details = append(details, ErrorDetail{Field: name, Issue: err.Error()})
		}
	}
	if len(details) > 0 {
		return &ErrorResponse{Code: CodeInvalidOverride, Message: "Invalid overrides", Details: details}
	}
	return nil
}

func modelInfo(m *ruleengine.Model) ModelInfo {
	parents := m.Parents()
	fallbacks := make([]string, len(parents))
	for i, p := range parents {
		fallbacks[i] = p.Name()
	}
	return ModelInfo{Name: m.Name(), Rules: m.Len(), Fallbacks: fallbacks}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, resp ErrorResponse) {
	render.Status(r, status)
	render.JSON(w, r, resp)
}
