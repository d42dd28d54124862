package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"geoindex/internal/domain/entities"
	"geoindex/internal/services"
)

// Reserved keys added to every document in API responses.
const (
	DocIDKey    = "_doc_id"
	DistanceKey = "_distance_meters"
)

// searchParams names the query parameter behind each validated field.
var searchParams = map[string]string{
	"latitude":  "lat",
	"longitude": "lng",
	"radius":    "radius",
}

type SearchHandler struct {
	searchService *services.SearchService
}

func NewSearchHandler(searchService *services.SearchService) *SearchHandler {
	return &SearchHandler{searchService: searchService}
}

// Nearby handles GET /events/nearby?lat=&lng=&radius=&collection=
func (h *SearchHandler) Nearby(c *gin.Context) {
	var values [3]float64
	for i, name := range []string{"lat", "lng", "radius"} {
		raw, ok := c.GetQuery(name)
		if !ok || raw == "" {
			badParam(c, name, "missing required parameter: "+name)
			return
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			badParam(c, name, "invalid parameter format: "+name+" must be a number")
			return
		}
		values[i] = v
	}

	res, err := h.searchService.SearchByRadius(c.Request.Context(),
		values[0], values[1], values[2], c.Query("collection"))
	if err != nil {
		respondError(c, err, searchParams)
		return
	}

	events := make([]gin.H, 0, len(res.Events))
	for _, ev := range res.Events {
		out := documentJSON(ev.Document)
		out[DistanceKey] = ev.DistanceMeters
		events = append(events, out)
	}

	c.JSON(http.StatusOK, gin.H{
		"events":        events,
		"total_events":  res.TotalEvents,
		"radius_meters": res.RadiusMeters,
		"center": gin.H{
			"latitude":  res.Center.Latitude,
			"longitude": res.Center.Longitude,
		},
	})
}

// documentJSON flattens a document into its fields plus its id.
func documentJSON(doc *entities.Document) gin.H {
	out := make(gin.H, len(doc.Fields)+2)
	for k, v := range doc.Fields {
		out[k] = v
	}
	out[DocIDKey] = doc.ID
	return out
}
