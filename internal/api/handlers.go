package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/valter-silva-au/knc/internal/core"
	"github.com/valter-silva-au/knc/pkg/models"
)

// maxBodyBytes bounds request bodies, import documents included.
const maxBodyBytes = 8 << 20

var errUnavailable = errors.New("service not configured")

type handlers struct {
	deps Deps
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	ok(w, r, "ok", map[string]string{"status": "healthy"})
}

// listConfigs answers GET /configs. Without query parameters it lists every
// record; variant, q and status narrow the result through Search.
func (h *handlers) listConfigs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	status, err := models.ParseStatusFilter(query.Get("status"))
	if err != nil {
		badRequest(w, r, err)
		return
	}
	variants := models.AllVariants
	if name := query.Get("variant"); name != "" {
		v, err := models.ParseVariant(name)
		if err != nil {
			badRequest(w, r, err)
			return
		}
		variants = []models.ConfigVariant{v}
	}

	cfgs := []models.Config{}
	for _, v := range variants {
		found, err := h.deps.Registry.Search(v, query.Get("q"), status)
		if err != nil {
			fail(w, r, fmt.Errorf("searching %s configs: %w", v, err))
			return
		}
		cfgs = append(cfgs, found...)
	}
	ok(w, r, "ok", cfgs)
}

func (h *handlers) getConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.deps.Registry.Get(chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, r, "ok", cfg)
}

// createConfig validates the posted fields as a complete record before
// handing them to the registry, which does not validate.
func (h *handlers) createConfig(w http.ResponseWriter, r *http.Request) {
	variant, err := models.ParseVariant(chi.URLParam(r, "variant"))
	if err != nil {
		badRequest(w, r, err)
		return
	}
	fields, err := decodeFields(r)
	if err != nil {
		badRequest(w, r, err)
		return
	}
	if errs := core.ValidatePartial(variant, fields); len(errs) > 0 {
		invalid(w, r, errs)
		return
	}
	cfg, err := h.deps.Registry.Create(variant, fields)
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, r, http.StatusCreated, "created", cfg)
}

func (h *handlers) updateConfig(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	existing, err := h.deps.Registry.Get(id)
	if err != nil {
		fail(w, r, err)
		return
	}
	fields, err := decodeFields(r)
	if err != nil {
		badRequest(w, r, err)
		return
	}
	if errs := core.ValidatePatch(existing, fields); len(errs) > 0 {
		invalid(w, r, errs)
		return
	}
	cfg, err := h.deps.Registry.Update(id, fields)
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, r, "updated", cfg)
}

func (h *handlers) deleteConfig(w http.ResponseWriter, r *http.Request) {
	removed, err := h.deps.Registry.Delete(chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	msg := "deleted"
	if !removed {
		msg = "nothing to delete"
	}
	ok(w, r, msg, map[string]bool{"removed": removed})
}

func (h *handlers) duplicateConfig(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	cfg, err := h.deps.Registry.Duplicate(id)
	if err != nil {
		fail(w, r, err)
		return
	}
	if cfg == nil {
		fail(w, r, fmt.Errorf("duplicating %s: %w", id, core.ErrNotFound))
		return
	}
	respond(w, r, http.StatusCreated, "duplicated", cfg)
}

func (h *handlers) toggleConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.deps.Registry.ToggleEnabled(chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, r, "toggled", cfg)
}

// testConfig probes one record. A failed probe is still a 200: the outcome
// is in data.success.
func (h *handlers) testConfig(w http.ResponseWriter, r *http.Request) {
	if h.deps.Tester == nil {
		respond(w, r, http.StatusServiceUnavailable, "connection tester: "+errUnavailable.Error(), nil)
		return
	}
	cfg, err := h.deps.Registry.Get(chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	result := h.deps.Tester.Test(r.Context(), cfg)
	ok(w, r, result.Message, result)
}

// listInstances pages through the object instances behind an ontology
// object config. limit and search_after (a JSON array from the previous
// page) select one page; all=true follows cursors up to max entries.
func (h *handlers) listInstances(w http.ResponseWriter, r *http.Request) {
	if h.deps.Instances == nil {
		respond(w, r, http.StatusServiceUnavailable, "instance browser: "+errUnavailable.Error(), nil)
		return
	}
	query := r.URL.Query()
	limit, err := intParam(query.Get("limit"))
	if err != nil {
		badRequest(w, r, fmt.Errorf("limit: %w", err))
		return
	}
	id := chi.URLParam(r, "id")

	if all, _ := strconv.ParseBool(query.Get("all")); all {
		maxEntries, err := intParam(query.Get("max"))
		if err != nil {
			badRequest(w, r, fmt.Errorf("max: %w", err))
			return
		}
		page, err := h.deps.Instances.LoadAll(r.Context(), id, limit, maxEntries)
		if err != nil {
			fail(w, r, err)
			return
		}
		ok(w, r, "ok", page)
		return
	}

	q := core.InstanceQuery{Limit: limit}
	if after := query.Get("search_after"); after != "" {
		if err := json.Unmarshal([]byte(after), &q.SearchAfter); err != nil {
			badRequest(w, r, fmt.Errorf("search_after must be a JSON array: %w", err))
			return
		}
	}
	page, err := h.deps.Instances.Page(r.Context(), id, q)
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, r, "ok", page)
}

// intParam parses an optional non-negative integer query parameter.
func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%q is not a non-negative integer", v)
	}
	return n, nil
}

// validate checks posted fields without saving. With ?partial=true only the
// given fields are reported.
func (h *handlers) validate(w http.ResponseWriter, r *http.Request) {
	variant, err := models.ParseVariant(chi.URLParam(r, "variant"))
	if err != nil {
		badRequest(w, r, err)
		return
	}
	fields, err := decodeFields(r)
	if err != nil {
		badRequest(w, r, err)
		return
	}
	errs := core.ValidatePartial(variant, fields)
	if partial, _ := strconv.ParseBool(r.URL.Query().Get("partial")); partial {
		kept := []models.FieldError{}
		for _, e := range errs {
			if _, given := fields[e.Field]; given {
				kept = append(kept, e)
			}
		}
		errs = kept
	}
	ok(w, r, "validated", map[string]any{
		"valid":  len(errs) == 0,
		"errors": errs,
	})
}

// exportConfigs answers GET /export with the document in data. Query:
// variant (repeatable), includeDisabled (default true), ids (glob).
func (h *handlers) exportConfigs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	opts := core.ExportOptions{IncludeDisabled: true, IDPattern: query.Get("ids")}
	if raw := query.Get("includeDisabled"); raw != "" {
		include, err := strconv.ParseBool(raw)
		if err != nil {
			badRequest(w, r, fmt.Errorf("invalid includeDisabled %q", raw))
			return
		}
		opts.IncludeDisabled = include
	}
	for _, name := range query["variant"] {
		v, err := models.ParseVariant(name)
		if err != nil {
			badRequest(w, r, err)
			return
		}
		opts.Variants = append(opts.Variants, v)
	}

	data, err := h.deps.Serializer.Export(opts)
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, r, "exported", json.RawMessage(data))
}

func (h *handlers) importConfigs(w http.ResponseWriter, r *http.Request) {
	merge := false
	if raw := r.URL.Query().Get("merge"); raw != "" {
		m, err := strconv.ParseBool(raw)
		if err != nil {
			badRequest(w, r, fmt.Errorf("invalid merge %q", raw))
			return
		}
		merge = m
	}
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		badRequest(w, r, fmt.Errorf("reading import document: %w", err))
		return
	}
	summary, err := h.deps.Serializer.Import(data, merge)
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, r, "imported", summary)
}

// getSettings returns the settings with the token masked unless
// ?reveal=true.
func (h *handlers) getSettings(w http.ResponseWriter, r *http.Request) {
	if h.deps.Settings == nil {
		respond(w, r, http.StatusServiceUnavailable, "settings store: "+errUnavailable.Error(), nil)
		return
	}
	s, err := h.deps.Settings.Settings()
	if err != nil {
		fail(w, r, err)
		return
	}
	if reveal, _ := strconv.ParseBool(r.URL.Query().Get("reveal")); !reveal {
		s = s.Redacted()
	}
	ok(w, r, "ok", s)
}

func (h *handlers) putSettings(w http.ResponseWriter, r *http.Request) {
	if h.deps.Settings == nil {
		respond(w, r, http.StatusServiceUnavailable, "settings store: "+errUnavailable.Error(), nil)
		return
	}
	var s models.GlobalSettings
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&s); err != nil {
		badRequest(w, r, fmt.Errorf("decoding settings: %w", err))
		return
	}
	if s.ProbeTimeoutSeconds < 0 {
		invalid(w, r, []models.FieldError{{Field: "probeTimeoutSeconds", Message: "must not be negative"}})
		return
	}
	if err := h.deps.Settings.Save(s); err != nil {
		fail(w, r, err)
		return
	}
	ok(w, r, "saved", s.Redacted())
}

func decodeFields(r *http.Request) (models.Fields, error) {
	fields := models.Fields{}
	if r.Body == nil {
		return fields, nil
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&fields); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decoding request body: %w", err)
	}
	return fields, nil
}
