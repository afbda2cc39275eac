package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vladislavdragonenkov/crowngate/internal/domain"
)

type createProductRequest struct {
	Name string `json:"name"`
}

func (h *handler) listUsers(c *gin.Context) {
	c.JSON(http.StatusOK, h.store.GetUsers(c.Request.Context()))
}

// createUser всегда отвечает 403: пользователи ведутся в удалённой таблице.
func (h *handler) createUser(c *gin.Context) {
	var user domain.User
	if err := decodeJSON(c, &user); err != nil {
		h.logger.WithError(err).Debug("user body is not valid JSON, rejecting anyway")
	}
	if err := h.store.AddUser(c.Request.Context(), user); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handler) listProducts(c *gin.Context) {
	c.JSON(http.StatusOK, h.store.GetProducts(c.Request.Context()))
}

func (h *handler) createProduct(c *gin.Context) {
	var req createProductRequest
	if err := decodeJSON(c, &req); err != nil {
		badRequest(c, "malformed JSON body")
		return
	}
	product, conf, err := h.store.AddProduct(c.Request.Context(), req.Name)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Header(HeaderSyncState, syncState(h.store.Mode(), conf))
	c.JSON(http.StatusCreated, product)
}

func (h *handler) deleteProduct(c *gin.Context) {
	conf, err := h.store.DeleteProduct(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Header(HeaderSyncState, syncState(h.store.Mode(), conf))
	c.Status(http.StatusNoContent)
}

// stats считает KPI по кэшу без обращения к бэкенду.
func (h *handler) stats(c *gin.Context) {
	c.JSON(http.StatusOK, domain.ComputeDashboardStats(h.store.Snapshot().Orders))
}
