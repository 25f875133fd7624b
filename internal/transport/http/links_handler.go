package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/linkkey/linkkey/internal/config"
	"github.com/linkkey/linkkey/internal/constants"
	"github.com/linkkey/linkkey/internal/infrastructure/logger"
	appvalidation "github.com/linkkey/linkkey/internal/infrastructure/validation"
	"github.com/linkkey/linkkey/internal/processing/analytics"
	"github.com/linkkey/linkkey/internal/processing/links"
	"github.com/linkkey/linkkey/internal/storage/redis"
	"github.com/linkkey/linkkey/internal/transport/http/middleware"
	"github.com/linkkey/linkkey/pkg/httputils"
)

// VisitRecorder receives one visit per served redirect. In direct mode this
// is the analytics pipeline; in outbox mode it stages an event for the
// worker instead.
type VisitRecorder interface {
	Record(ctx context.Context, key string, visit analytics.Visit) error
}

// StatsReader serves the aggregated analytics behind the stats endpoint.
type StatsReader interface {
	Summary(ctx context.Context, key string) (analytics.Summary, error)
}

type LinksHandler struct {
	cfg      *config.Config
	svc      *links.Service
	recorder VisitRecorder
	stats    StatsReader
	cache    *redis.LinkCache

	clickTimeout time.Duration
}

func NewLinksHandler(cfg *config.Config, svc *links.Service, recorder VisitRecorder, stats StatsReader, cache *redis.LinkCache) *LinksHandler {
	clickTimeout := cfg.Analytics.ClickTimeout
	if clickTimeout <= 0 {
		clickTimeout = 2 * time.Second
	}

	return &LinksHandler{
		cfg:          cfg,
		svc:          svc,
		recorder:     recorder,
		stats:        stats,
		cache:        cache,
		clickTimeout: clickTimeout,
	}
}

type createLinkRequest struct {
	Destination string   `json:"destination" validate:"required,notblank,http_url"`
	Key         string   `json:"key,omitempty"`
	Title       string   `json:"title,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

type editLinkRequest struct {
	Destination *string  `json:"destination,omitempty" validate:"omitempty,notblank,http_url"`
	Title       *string  `json:"title,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

type linkResponse struct {
	Key         string    `json:"key"`
	Destination string    `json:"destination"`
	ShortURL    string    `json:"shortUrl"`
	Title       string    `json:"title,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	TotalClicks int64     `json:"totalClicks"`
	CreatedOn   time.Time `json:"createdOn"`
	ModifiedOn  time.Time `json:"modifiedOn"`
}

func (h *LinksHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputils.WriteAPIError(w, r, constants.ErrInvalidRequestBody)
		return
	}
	if err := appvalidation.Validate(req); err != nil {
		apiErr := constants.ErrInvalidRequestBody
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			for _, e := range validationErrs {
				if e.Field() == "destination" {
					apiErr = constants.ErrInvalidDestination
					break
				}
			}
		}
		httputils.WriteAPIError(w, r, apiErr)
		return
	}

	principal := middleware.PrincipalFrom(r.Context())

	link, err := h.svc.CreateLink(r.Context(), links.CreateLinkInput{
		Destination: req.Destination,
		CustomKey:   req.Key,
		Title:       req.Title,
		Tags:        req.Tags,
	}, principal)
	if err != nil {
		h.writeLinkError(w, r, err, "failed to create link")
		return
	}

	httputils.WriteAPISuccess(w, r, constants.SuccessLinkCreated, h.toResponse(link))
}

func (h *LinksHandler) Edit(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")

	var req editLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputils.WriteAPIError(w, r, constants.ErrInvalidRequestBody)
		return
	}
	if err := appvalidation.Validate(req); err != nil {
		apiErr := constants.ErrInvalidRequestBody
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			for _, e := range validationErrs {
				if e.Field() == "destination" {
					apiErr = constants.ErrInvalidDestination
					break
				}
			}
		}
		httputils.WriteAPIError(w, r, apiErr)
		return
	}

	principal := middleware.PrincipalFrom(r.Context())

	link, err := h.svc.EditLink(r.Context(), key, links.EditLinkInput{
		Destination: req.Destination,
		Title:       req.Title,
		Tags:        req.Tags,
	}, principal)
	if err != nil {
		h.writeLinkError(w, r, err, "failed to edit link")
		return
	}

	h.invalidateCache(r.Context(), link.Key)
	httputils.WriteAPISuccess(w, r, constants.SuccessLinkUpdated, h.toResponse(link))
}

func (h *LinksHandler) Delete(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	principal := middleware.PrincipalFrom(r.Context())

	if err := h.svc.DeleteLink(r.Context(), key, principal); err != nil {
		h.writeLinkError(w, r, err, "failed to delete link")
		return
	}

	h.invalidateCache(r.Context(), key)
	httputils.WriteAPISuccess(w, r, constants.SuccessLinkDeleted, map[string]string{"key": key})
}

func (h *LinksHandler) Get(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")

	link, err := h.svc.Resolve(r.Context(), key)
	if err != nil {
		h.writeLinkError(w, r, err, "failed to fetch link")
		return
	}

	httputils.WriteAPISuccess(w, r, constants.SuccessLinkFound, h.toResponse(link))
}

func (h *LinksHandler) Redirect(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")

	destination, ok := h.cache.Destination(r.Context(), key)
	if !ok {
		link, err := h.svc.Resolve(r.Context(), key)
		if err != nil {
			switch {
			case errors.Is(err, links.ErrNotFound):
				http.NotFound(w, r)
			default:
				logger.Error("failed to resolve key", zap.Error(err), zap.String("key", key))
				w.WriteHeader(http.StatusInternalServerError)
			}
			return
		}
		destination = link.Destination
		if err := h.cache.Store(r.Context(), key, destination); err != nil {
			logger.Warn("failed to cache destination", zap.Error(err), zap.String("key", key))
		}
	}

	visit := analytics.Visit{
		IP:      middleware.ClientIP(r),
		Referer: r.Referer(),
		At:      time.Now().UTC(),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), h.clickTimeout)
		defer cancel()
		if err := h.recorder.Record(ctx, key, visit); err != nil {
			logger.Warn("failed to record visit", zap.Error(err), zap.String("key", key))
		}
	}()

	w.Header().Set("Cache-Control", fmt.Sprintf("private, max-age=%d", int(h.cfg.Shortener.CacheMaxAge/time.Second)))
	http.Redirect(w, r, destination, h.cfg.Shortener.RedirectStatus)
}

func (h *LinksHandler) Stats(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")

	link, err := h.svc.Resolve(r.Context(), key)
	if err != nil {
		h.writeLinkError(w, r, err, "failed to fetch stats")
		return
	}

	summary, err := h.stats.Summary(r.Context(), link.Key)
	if err != nil {
		logger.Error("failed to fetch stats", zap.Error(err), zap.String("key", key))
		httputils.WriteAPIError(w, r, constants.ErrInternalError)
		return
	}

	httputils.WriteAPISuccess(w, r, constants.SuccessStatsFound, statsResponse{
		Key:            key,
		TotalClicks:    link.TotalClicks,
		UniqueVisitors: summary.UniqueVisitors,
		Referers:       summary.Referers,
		Regions:        summary.Regions,
	})
}

type statsResponse struct {
	Key            string                  `json:"key"`
	TotalClicks    int64                   `json:"totalClicks"`
	UniqueVisitors int64                   `json:"uniqueVisitors"`
	Referers       []analytics.RefererStat `json:"referers"`
	Regions        []analytics.RegionStat  `json:"regions"`
}

func (h *LinksHandler) toResponse(link *links.Link) linkResponse {
	return linkResponse{
		Key:         link.Key,
		Destination: link.Destination,
		ShortURL:    strings.TrimRight(h.cfg.Shortener.BaseURL, "/") + "/" + link.Key,
		Title:       link.Title,
		Tags:        link.Tags,
		TotalClicks: link.TotalClicks,
		CreatedOn:   link.CreatedOn,
		ModifiedOn:  link.ModifiedOn,
	}
}

func (h *LinksHandler) writeLinkError(w http.ResponseWriter, r *http.Request, err error, logMsg string) {
	var verr *links.ValidationError
	switch {
	case errors.As(err, &verr):
		httputils.WriteAPIError(w, r, validationAPIError(verr))
	case errors.Is(err, links.ErrNotFound):
		httputils.WriteAPIError(w, r, constants.ErrLinkNotFound)
	case errors.Is(err, links.ErrKeyTaken):
		httputils.WriteAPIError(w, r, constants.ErrKeyTaken)
	case errors.Is(err, links.ErrUnauthenticated):
		httputils.WriteAPIError(w, r, constants.ErrUnauthorized)
	case errors.Is(err, links.ErrForbidden):
		httputils.WriteAPIError(w, r, constants.ErrForbidden)
	default:
		logger.Error(logMsg, zap.Error(err))
		httputils.WriteAPIError(w, r, constants.ErrInternalError)
	}
}

// validationAPIError picks the response code from the failing field so
// clients can react per field instead of parsing messages.
func validationAPIError(verr *links.ValidationError) constants.APIError {
	for field := range verr.Fields {
		switch field {
		case "key":
			return constants.ErrInvalidKey.WithMessage(verr.Error())
		case "destination":
			return constants.ErrInvalidDestination.WithMessage(verr.Error())
		case "tags":
			return constants.ErrTooManyTags.WithMessage(verr.Error())
		}
	}
	return constants.ErrInvalidRequestBody.WithMessage(verr.Error())
}

func (h *LinksHandler) invalidateCache(ctx context.Context, key string) {
	if err := h.cache.Invalidate(ctx, key); err != nil {
		logger.Warn("failed to invalidate cached destination", zap.Error(err), zap.String("key", key))
	}
}
