package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"geoindex/internal/domain/entities"
	"geoindex/internal/logging"
	"geoindex/internal/repository"
	"geoindex/internal/services"
	"geoindex/pkg/utils"
)

// DocumentHandler is the write path of the API. Every create and patch is
// followed by an index maintenance pass on the written document, so clients
// never manage the index key themselves.
type DocumentHandler struct {
	store      repository.DocumentStore
	maintainer *services.IndexMaintainer
	logger     *slog.Logger
}

func NewDocumentHandler(store repository.DocumentStore, maintainer *services.IndexMaintainer, logger *slog.Logger) *DocumentHandler {
	return &DocumentHandler{
		store:      store,
		maintainer: maintainer,
		logger:     logging.OrDiscard(logger),
	}
}

// Create handles POST /collections/:collection/documents
func (h *DocumentHandler) Create(c *gin.Context) {
	collection := c.Param("collection")

	var body map[string]any
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id, _ := body["id"].(string)
	if id == "" {
		id = utils.GenerateID()
	} else if !utils.ValidID(id) {
		badParam(c, "id", "id must be 1 to 512 bytes without '/'")
		return
	}
	doc := entities.NewDocument(id, h.clean(body))

	ctx := c.Request.Context()
	var out gin.H
	err := h.maintainer.Guard(ctx, collection, id, func() error {
		if err := h.store.Set(ctx, collection, doc); err != nil {
			return err
		}
		out = h.reindexed(c, collection, doc)
		return nil
	})
	if err != nil {
		respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusCreated, out)
}

// Get handles GET /collections/:collection/documents/:id
func (h *DocumentHandler) Get(c *gin.Context) {
	doc, err := h.store.Get(c.Request.Context(), c.Param("collection"), c.Param("id"))
	if err != nil {
		respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, documentJSON(doc))
}

// Patch handles PATCH /collections/:collection/documents/:id. Top-level fields
// in the body replace the stored ones.
func (h *DocumentHandler) Patch(c *gin.Context) {
	collection, id := c.Param("collection"), c.Param("id")

	var body map[string]any
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	var out gin.H
	err := h.maintainer.Guard(ctx, collection, id, func() error {
		if err := h.store.Update(ctx, collection, id, h.clean(body)); err != nil {
			return err
		}
		doc, err := h.store.Get(ctx, collection, id)
		if err != nil {
			return err
		}
		out = h.reindexed(c, collection, doc)
		return nil
	})
	if err != nil {
		respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, out)
}

// Delete handles DELETE /collections/:collection/documents/:id
func (h *DocumentHandler) Delete(c *gin.Context) {
	ctx := c.Request.Context()
	collection, id := c.Param("collection"), c.Param("id")
	err := h.maintainer.Guard(ctx, collection, id, func() error {
		return h.store.Delete(ctx, collection, id)
	})
	if err != nil {
		respondError(c, err, nil)
		return
	}
	c.Status(http.StatusNoContent)
}

// Reindex handles POST /collections/:collection/reindex
func (h *DocumentHandler) Reindex(c *gin.Context) {
	summary, err := h.maintainer.ReindexCollection(c.Request.Context(), c.Param("collection"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "summary": summary})
		return
	}
	c.JSON(http.StatusOK, summary)
}

// clean drops the keys a client may not write: the id (it lives in the path
// or is generated) and the index key.
func (h *DocumentHandler) clean(body map[string]any) map[string]any {
	delete(body, "id")
	delete(body, DocIDKey)
	delete(body, DistanceKey)
	delete(body, h.maintainer.IndexField())
	return body
}

// reindexed runs index maintenance after a write and renders the document.
// A failed maintenance write does not fail the request that triggered it.
func (h *DocumentHandler) reindexed(c *gin.Context, collection string, doc *entities.Document) gin.H {
	res, err := h.maintainer.Reindex(c.Request.Context(), collection, doc)
	out := documentJSON(doc)

	index := gin.H{"outcome": res.Outcome}
	if res.IndexKey != "" {
		index["key"] = res.IndexKey
	}
	switch {
	case err != nil:
		h.logger.Error("index maintenance failed", "collection", collection, "doc_id", doc.ID, "err", err)
		index["outcome"] = "failed"
		index["error"] = err.Error()
	case res.Reason != nil:
		index["error"] = res.Reason.Error()
	}
	return gin.H{"document": out, "index": index}
}
