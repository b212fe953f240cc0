package webhooks

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/beacon/pkg/httputil"
)

// DeliveriesResponse lists recent deliveries
type DeliveriesResponse struct {
	Deliveries []*DeliveryLog `json:"deliveries"`
}

// EndpointSummary describes a configured endpoint without its secret
type EndpointSummary struct {
	Name   string        `json:"name"`
	URL    string        `json:"url"`
	Format Format        `json:"format"`
	Signed bool          `json:"signed"`
	Stats  DeliveryStats `json:"stats"`
}

// EndpointsResponse lists configured endpoints
type EndpointsResponse struct {
	Endpoints []EndpointSummary `json:"endpoints"`
}

// WebhookHandlers exposes delivery history for operators
type WebhookHandlers struct {
	notifier *Notifier
}

// NewWebhookHandlers creates new webhook handlers
func NewWebhookHandlers(notifier *Notifier) *WebhookHandlers {
	return &WebhookHandlers{
		notifier: notifier,
	}
}

// RegisterRoutes registers webhook routes
func (h *WebhookHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/webhooks", h.listEndpoints).Methods("GET")
	router.HandleFunc("/webhooks/deliveries", h.listDeliveries).Methods("GET")
	router.HandleFunc("/webhooks/deliveries/{id}", h.getDelivery).Methods("GET")
	router.HandleFunc("/webhooks/ping", h.ping).Methods("POST")
}

// listEndpoints handles GET /webhooks
func (h *WebhookHandlers) listEndpoints(w http.ResponseWriter, r *http.Request) {
	endpoints := h.notifier.Endpoints()
	resp := EndpointsResponse{Endpoints: make([]EndpointSummary, 0, len(endpoints))}
	for _, ep := range endpoints {
		resp.Endpoints = append(resp.Endpoints, EndpointSummary{
			Name:   ep.Name,
			URL:    ep.URL,
			Format: ep.Format,
			Signed: ep.Secret != "",
			Stats:  h.notifier.Deliveries().Stats(ep.Name),
		})
	}
	_ = httputil.WriteSuccess(w, resp)
}

// listDeliveries handles GET /webhooks/deliveries?endpoint=&limit=
func (h *WebhookHandlers) listDeliveries(w http.ResponseWriter, r *http.Request) {
	limit, err := httputil.ParseQueryInt(r, "limit", 50)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	endpoint := httputil.ParseQueryString(r, "endpoint", "")

	deliveries := h.notifier.Deliveries().List(endpoint, limit)
	_ = httputil.WriteSuccess(w, DeliveriesResponse{Deliveries: deliveries})
}

// getDelivery handles GET /webhooks/deliveries/{id}
func (h *WebhookHandlers) getDelivery(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	delivery, ok := h.notifier.Deliveries().Get(id)
	if !ok {
		httputil.WriteNotFoundError(w, fmt.Sprintf("delivery %s not found", id))
		return
	}
	_ = httputil.WriteSuccess(w, delivery)
}

// ping handles POST /webhooks/ping
func (h *WebhookHandlers) ping(w http.ResponseWriter, r *http.Request) {
	if err := h.notifier.Ping(r.Context()); err != nil {
		httputil.WriteErrorMessage(w, http.StatusBadGateway, err.Error())
		return
	}
	_ = httputil.WriteSuccess(w, map[string]string{"status": "delivered"})
}
