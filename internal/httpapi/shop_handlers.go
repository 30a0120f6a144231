package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"storegate.org/internal/auth"
	"storegate.org/internal/shop"
)

type createProductRequest struct {
	SKU         string `json:"sku"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Price       int64  `json:"price"`
	Inventory   int    `json:"inventory"`
	Status      string `json:"status"`
}

type updateProductRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Price       *int64  `json:"price"`
	Inventory   *int    `json:"inventory"`
	Status      *string `json:"status"`
}

type createCategoryRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type createOrderRequest struct {
	Items []orderItemRequest `json:"items"`
}

type orderItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type updateOrderStatusRequest struct {
	Status string `json:"status"`
}

type createPaymentRequest struct {
	OrderID string `json:"order_id"`
	Method  string `json:"method"`
	Amount  int64  `json:"amount"`
}

// --- products ---

func (a *API) handleProducts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if !a.ensurePermissions(w, r, auth.PermProductRead) {
			return
		}
		limit, err := parsePositiveInt(r.URL.Query().Get("limit"), 100, 1, 1000)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		products, err := a.shop.ListProducts(r.Context(), limit)
		if err != nil {
			handleShopError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"products": products})
	case http.MethodPost:
		if !a.ensurePermissions(w, r, auth.PermProductWrite) {
			return
		}
		var req createProductRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		product, err := a.shop.CreateProduct(r.Context(), shop.Product{
			SKU:         req.SKU,
			Name:        req.Name,
			Description: req.Description,
			Price:       req.Price,
			Inventory:   req.Inventory,
			Status:      req.Status,
		})
		if err != nil {
			handleShopError(w, r, err)
			return
		}
		w.Header().Set("Location", fmt.Sprintf("/v1/products/%s", product.ID))
		writeJSON(w, http.StatusCreated, product)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleProductScoped(w http.ResponseWriter, r *http.Request) {
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/products/"), "/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	switch r.Method {
	case http.MethodGet:
		if !a.ensurePermissions(w, r, auth.PermProductRead) {
			return
		}
		product, err := a.shop.GetProduct(r.Context(), id)
		if err != nil {
			handleShopError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, product)
	case http.MethodPatch:
		if !a.ensurePermissions(w, r, auth.PermProductWrite) {
			return
		}
		var req updateProductRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		product, err := a.shop.UpdateProduct(r.Context(), id, shop.ProductUpdate{
			Name:        req.Name,
			Description: req.Description,
			Price:       req.Price,
			Inventory:   req.Inventory,
			Status:      req.Status,
		})
		if err != nil {
			handleShopError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, product)
	case http.MethodDelete:
		if !a.ensurePermissions(w, r, auth.PermProductDelete) {
			return
		}
		if err := a.shop.DeleteProduct(r.Context(), id); err != nil {
			handleShopError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPatch, http.MethodDelete)
	}
}

// --- categories ---

func (a *API) handleCategories(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if !a.ensurePermissions(w, r, auth.PermCategoryRead) {
			return
		}
		categories, err := a.shop.ListCategories(r.Context())
		if err != nil {
			handleShopError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"categories": categories})
	case http.MethodPost:
		if !a.ensurePermissions(w, r, auth.PermCategoryWrite) {
			return
		}
		var req createCategoryRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		category, err := a.shop.CreateCategory(r.Context(), shop.Category{
			Name:        req.Name,
			Description: req.Description,
		})
		if err != nil {
			handleShopError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, category)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

// --- orders ---

func (a *API) handleOrders(w http.ResponseWriter, r *http.Request) {
	principal, ok := mustPrincipal(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		if !a.ensurePermissions(w, r, auth.PermOrderRead) {
			return
		}
		limit, err := parsePositiveInt(r.URL.Query().Get("limit"), 100, 1, 1000)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		orders, err := a.shop.ListOrdersForUser(r.Context(), principal.User.ID, limit)
		if err != nil {
			handleShopError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"orders": orders})
	case http.MethodPost:
		var req createOrderRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		items := make([]shop.OrderItem, 0, len(req.Items))
		for _, it := range req.Items {
			items = append(items, shop.OrderItem{ProductID: it.ProductID, Quantity: it.Quantity})
		}
		order, err := a.shop.CreateOrder(r.Context(), principal.User.ID, items)
		if err != nil {
			handleShopError(w, r, err)
			return
		}
		w.Header().Set("Location", fmt.Sprintf("/v1/orders/%s", order.ID))
		writeJSON(w, http.StatusCreated, order)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleOrderScoped(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/orders/"), "/")
	parts := strings.Split(path, "/")
	switch {
	case len(parts) == 1 && parts[0] != "":
		a.handleOrderByID(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "status":
		a.handleOrderStatus(w, r, parts[0])
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleOrderByID(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	principal, ok := mustPrincipal(w, r)
	if !ok {
		return
	}
	if !a.ensurePermissions(w, r, auth.PermOrderRead) {
		return
	}
	order, err := a.shop.GetOrder(r.Context(), id)
	if err != nil {
		handleShopError(w, r, err)
		return
	}
	// order:read alone only covers the caller's own orders
	if order.UserID != principal.User.ID && !a.ensurePermissions(w, r, auth.PermOrderManage) {
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (a *API) handleOrderStatus(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPatch {
		methodNotAllowed(w, r, http.MethodPatch)
		return
	}
	if !a.ensurePermissions(w, r, auth.PermOrderUpdateStatus) {
		return
	}
	var req updateOrderStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	order, err := a.shop.UpdateOrderStatus(r.Context(), id, req.Status)
	if err != nil {
		handleShopError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// --- payments ---

// POST /v1/payments. A caller may pay for their own order; paying for
// someone else's requires payment:process.
func (a *API) handlePayments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	principal, ok := mustPrincipal(w, r)
	if !ok {
		return
	}
	var req createPaymentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	order, err := a.shop.GetOrder(r.Context(), req.OrderID)
	if err != nil {
		handleShopError(w, r, err)
		return
	}
	if order.UserID != principal.User.ID && !a.ensurePermissions(w, r, auth.PermPaymentProcess) {
		return
	}
	payment, err := a.shop.ProcessPayment(r.Context(), req.OrderID, req.Method, req.Amount)
	if err != nil {
		handleShopError(w, r, err)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/v1/payments/%s", payment.ID))
	writeJSON(w, http.StatusCreated, payment)
}

func (a *API) handlePaymentScoped(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/payments/"), "/")
	parts := strings.Split(path, "/")
	switch {
	case len(parts) == 1 && parts[0] != "":
		a.handlePaymentByID(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "refund":
		a.handlePaymentRefund(w, r, parts[0])
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handlePaymentByID(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	principal, ok := mustPrincipal(w, r)
	if !ok {
		return
	}
	if !a.ensurePermissions(w, r, auth.PermPaymentRead) {
		return
	}
	payment, err := a.shop.GetPayment(r.Context(), id)
	if err != nil {
		handleShopError(w, r, err)
		return
	}
	order, err := a.shop.GetOrder(r.Context(), payment.OrderID)
	if err != nil {
		handleShopError(w, r, err)
		return
	}
	if order.UserID != principal.User.ID && !a.ensurePermissions(w, r, auth.PermPaymentViewSensitive) {
		return
	}
	writeJSON(w, http.StatusOK, payment)
}

func (a *API) handlePaymentRefund(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if !a.ensurePermissions(w, r, auth.PermPaymentRefund) {
		return
	}
	payment, err := a.shop.RefundPayment(r.Context(), id)
	if err != nil {
		handleShopError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payment)
}
