package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pricefeed/backend/internal/domain"
	"github.com/pricefeed/backend/internal/infrastructure/feed"
	"github.com/pricefeed/backend/internal/logger"
	"github.com/pricefeed/backend/internal/normalizer"
	"github.com/pricefeed/backend/internal/textutil"
	"github.com/pricefeed/backend/internal/usecase"
)

const (
	serviceName    = "pricefeed-backend"
	serviceVersion = "1.0.0"
)

// Handler holds dependencies for HTTP handlers
type Handler struct {
	mapping      *usecase.MappingService
	pipeline     *usecase.Pipeline
	registry     *normalizer.Registry
	maxBodyBytes int64
	log          logger.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(
	mapping *usecase.MappingService,
	pipeline *usecase.Pipeline,
	registry *normalizer.Registry,
	maxBodyBytes int64,
	log logger.Logger,
) *Handler {
	if maxBodyBytes <= 0 {
		maxBodyBytes = feed.DefaultMaxBytes
	}
	if log == nil {
		log = logger.GetDefault()
	}
	return &Handler{
		mapping:      mapping,
		pipeline:     pipeline,
		registry:     registry,
		maxBodyBytes: maxBodyBytes,
		log:          log.With("component", "http"),
	}
}

// HealthCheck returns the health status of the API
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": serviceName,
		"version": serviceVersion,
	})
}

// NormalizeFeedResponse is the body returned by the feed endpoints
type NormalizeFeedResponse struct {
	Shop    string                       `json:"shop"`
	Results []domain.NormalizationResult `json:"results"`
	Stats   domain.NormalizationStats    `json:"stats"`
}

// NormalizeFeed runs a posted feed (JSON array or JSONL) through the shop
// normalizer named in the path. With stream=true results are written as
// JSONL while the run progresses and the stats follow as the last line.
func (h *Handler) NormalizeFeed(c *gin.Context) {
	h.normalize(c, c.Param("shop"))
}

// DetectAndNormalizeFeed picks the normalizer from the first record's shape
func (h *Handler) DetectAndNormalizeFeed(c *gin.Context) {
	h.normalize(c, "")
}

func (h *Handler) normalize(c *gin.Context, shop string) {
	records, err := feed.Decode(c.Request.Body, h.maxBodyBytes)
	if err != nil {
		h.respondError(c, err)
		return
	}

	if shop == "" {
		if len(records) == 0 {
			h.respondError(c, fmt.Errorf("%w: cannot detect the shop of an empty feed", domain.ErrInvalidRequest))
			return
		}
		n, err := h.registry.Detect(records[0])
		if err != nil {
			h.respondError(c, err)
			return
		}
		shop = n.Shop()
	}

	opts := domain.NormalizeOptions{
		SourceFile: c.Query("source_file"),
		FetchedAt:  time.Now().UTC(),
	}

	if stream, _ := strconv.ParseBool(c.Query("stream")); stream {
		h.streamFeed(c, shop, records, opts)
		return
	}

	results := make([]domain.NormalizationResult, 0, len(records))
	stats, err := h.pipeline.Process(c.Request.Context(), shop, records, opts, func(r domain.NormalizationResult) {
		results = append(results, r)
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, NormalizeFeedResponse{Shop: shop, Results: results, Stats: stats})
}

func (h *Handler) streamFeed(c *gin.Context, shop string, records []domain.RawRecord, opts domain.NormalizeOptions) {
	run, err := h.pipeline.Stream(c.Request.Context(), shop, records, opts)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.Header("Content-Type", "application/x-ndjson")
	c.Status(http.StatusOK)
	enc := json.NewEncoder(c.Writer)
	for res := range run.Results() {
		if err := enc.Encode(res); err != nil {
			h.log.Warn("client went away during stream", "shop", shop, "error", err)
			break
		}
		c.Writer.Flush()
	}
	stats := run.Wait()
	_ = enc.Encode(gin.H{"shop": shop, "stats": stats})
}

// MapCategory resolves one category signal
func (h *Handler) MapCategory(c *gin.Context) {
	var in domain.MapInput
	if err := c.ShouldBindJSON(&in); err != nil {
		h.respondError(c, bindError(err))
		return
	}
	c.JSON(http.StatusOK, h.mapping.MapCategory(c.Request.Context(), in))
}

// ListUnmapped returns the unmapped queue with learning suggestions
func (h *Handler) ListUnmapped(c *gin.Context) {
	entries, err := h.mapping.UnmappedQueue(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	if shop := strings.TrimSpace(c.Query("shop")); shop != "" {
		filtered := entries[:0]
		for _, e := range entries {
			if e.Shop == shop {
				filtered = append(filtered, e)
			}
		}
		entries = filtered
	}
	c.JSON(http.StatusOK, gin.H{"unmapped": entries, "count": len(entries)})
}

// TaxonomyNode is one canonical category in API form
type TaxonomyNode struct {
	Path []string `json:"path"`
	Slug string   `json:"slug"`
}

// ListTaxonomy returns the canonical category tree, or one node for ?slug=
func (h *Handler) ListTaxonomy(c *gin.Context) {
	tax := h.mapping.Taxonomy()
	if slug := strings.TrimSpace(c.Query("slug")); slug != "" {
		path, ok := tax.Lookup(slug)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("unknown category slug %q", slug)})
			return
		}
		c.JSON(http.StatusOK, TaxonomyNode{Path: path, Slug: slug})
		return
	}

	nodes := make([]TaxonomyNode, 0, tax.Len())
	for _, path := range tax.Nodes() {
		nodes = append(nodes, TaxonomyNode{Path: path, Slug: textutil.PathSlug(path)})
	}
	c.JSON(http.StatusOK, gin.H{"nodes": nodes, "count": len(nodes)})
}

// PromoteRequest turns an unmapped category into an exact rule
type PromoteRequest struct {
	Shop             string             `json:"shop" binding:"required"`
	OriginalCategory string             `json:"original_category" binding:"required"`
	TargetPath       []string           `json:"target_path" binding:"required,min=1,dive,required"`
	CreatedBy        domain.RuleCreator `json:"created_by" binding:"omitempty,oneof=admin learning"`
}

// PromoteUnmapped creates a rule from an unmapped queue entry
func (h *Handler) PromoteUnmapped(c *gin.Context) {
	var req PromoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, bindError(err))
		return
	}
	rule, err := h.mapping.PromoteUnmapped(c.Request.Context(), req.Shop, req.OriginalCategory, req.TargetPath, req.CreatedBy)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rule)
}

// ListRules lists rules applying to ?shop=, all rules without it.
// ?unused=true keeps only enabled rules that never matched.
func (h *Handler) ListRules(c *gin.Context) {
	shop := strings.TrimSpace(c.Query("shop"))
	var (
		rules []domain.CategoryRule
		err   error
	)
	if unused, _ := strconv.ParseBool(c.Query("unused")); unused {
		rules, err = h.mapping.UnusedRules(c.Request.Context(), shop)
	} else {
		rules, err = h.mapping.Rules(c.Request.Context(), shop)
	}
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rules": rules, "count": len(rules)})
}

// RuleRequest is the body of a rule upsert
type RuleRequest struct {
	Shop        string             `json:"shop"`
	Pattern     string             `json:"pattern" binding:"required"`
	PatternType domain.PatternType `json:"pattern_type" binding:"required,oneof=exact regex synonym fuzzy"`
	TargetPath  []string           `json:"target_path" binding:"required,min=1,dive,required"`
	Confidence  float64            `json:"confidence" binding:"gte=0,lte=1"`
	Enabled     *bool              `json:"enabled"`
}

// UpsertRule creates or replaces an admin rule
func (h *Handler) UpsertRule(c *gin.Context) {
	var req RuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, bindError(err))
		return
	}
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	rule, err := h.mapping.UpsertRule(c.Request.Context(), domain.CategoryRule{
		Shop:        req.Shop,
		Pattern:     req.Pattern,
		PatternType: req.PatternType,
		TargetPath:  req.TargetPath,
		Confidence:  req.Confidence,
		CreatedBy:   domain.CreatedByAdmin,
		Enabled:     enabled,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rule)
}

// RulePatchRequest toggles a rule
type RulePatchRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// PatchRule enables or disables a rule, keeping its usage history
func (h *Handler) PatchRule(c *gin.Context) {
	var req RulePatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, bindError(err))
		return
	}
	id := c.Param("id")
	if err := h.mapping.SetRuleEnabled(c.Request.Context(), id, *req.Enabled); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "enabled": *req.Enabled})
}

// ShopInfo describes one registered normalizer
type ShopInfo struct {
	Shop   string        `json:"shop"`
	Schema domain.Schema `json:"schema"`
}

// ListShops returns the registered normalizers and their input schemas
func (h *Handler) ListShops(c *gin.Context) {
	shops := make([]ShopInfo, 0)
	for _, id := range h.registry.Shops() {
		n, err := h.registry.Get(id)
		if err != nil {
			continue
		}
		shops = append(shops, ShopInfo{Shop: id, Schema: n.Schema()})
	}
	c.JSON(http.StatusOK, gin.H{"shops": shops})
}

// bindError marks a binding failure as a client error
func bindError(err error) error {
	return fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err)
}

// respondError maps domain errors onto HTTP status codes
func (h *Handler) respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidRequest), errors.Is(err, domain.ErrInvalidRule):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrFormatNotSupported):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrUnknownShop), errors.Is(err, domain.ErrRuleNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrStoreUnavailable):
		status = http.StatusServiceUnavailable
	}

	if status >= http.StatusInternalServerError {
		h.log.Error("request failed", "path", c.FullPath(), "error", err)
	} else {
		h.log.Debug("request rejected", "path", c.FullPath(), "status", status, "error", err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
