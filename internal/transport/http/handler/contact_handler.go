package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"identity-reconciler/internal/core/cache"
	"identity-reconciler/internal/domain"
	"identity-reconciler/internal/repo"
	"identity-reconciler/internal/service"
	resp "identity-reconciler/internal/transport/http/response"
)

type ContactHandler struct {
	svc      *service.Reconciler
	contacts *repo.ContactRepo
	cache    *cache.Cache // nil when redis is not configured
	listTTL  time.Duration
	log      *zap.Logger
}

func NewContactHandler(svc *service.Reconciler, contacts *repo.ContactRepo, c *cache.Cache, listTTL time.Duration, log *zap.Logger) *ContactHandler {
	return &ContactHandler{svc: svc, contacts: contacts, cache: c, listTTL: listTTL, log: log}
}

type identifyReq struct {
	Email       *string `json:"email"`
	PhoneNumber *string `json:"phoneNumber"`
}

// Identify reconciles a probe and answers with the consolidated cluster view.
func (h *ContactHandler) Identify(c *gin.Context) {
	var in identifyReq
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusOK, resp.Error(resp.CodeBadRequest, err.Error()))
		return
	}

	view, err := h.svc.Identify(c.Request.Context(), in.Email, in.PhoneNumber)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidProbe):
			c.JSON(http.StatusOK, resp.Error(resp.CodeBadRequest, err.Error()))
		default:
			h.log.Error("identify failed", zap.Error(err), zap.String("rid", c.GetString("X-Request-ID")))
			c.JSON(http.StatusOK, resp.Error(resp.CodeServerError, "identify failed"))
		}
		return
	}
	c.JSON(http.StatusOK, resp.OK(gin.H{"contact": view}))
}

type contactList struct {
	Contacts []domain.Contact `json:"contacts"`
}

// ListContacts is a debug listing of all active contacts in creation order.
// Served through the redis read cache when available; staleness is bounded
// by the configured TTL.
func (h *ContactHandler) ListContacts(c *gin.Context) {
	ctx := c.Request.Context()

	if h.cache != nil {
		out, err := cache.GetOrLoadJSON(h.cache, ctx, "contacts:all", h.listTTL, func(ctx context.Context) (*contactList, error) {
			list, err := h.contacts.List(ctx)
			if err != nil {
				return nil, err
			}
			return &contactList{Contacts: list}, nil
		})
		if err != nil {
			h.log.Warn("contact list cache unavailable, reading store directly", zap.Error(err))
		} else if out != nil {
			c.JSON(http.StatusOK, resp.OK(out))
			return
		}
	}

	list, err := h.contacts.List(ctx)
	if err != nil {
		c.JSON(http.StatusOK, resp.Error(resp.CodeServerError, "list contacts failed"))
		return
	}
	c.JSON(http.StatusOK, resp.OK(contactList{Contacts: list}))
}
