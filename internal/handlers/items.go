package handlers

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/acai-counter/pos/internal/domain"
	"github.com/acai-counter/pos/internal/services"
)

// ProductCatalog resolves product ids sent by the counter UI.
type ProductCatalog interface {
	Product(id string) (domain.Product, bool)
	Products() []domain.Product
	ByCategory(category string) []domain.Product
	Categories() []string
}

type itemRequest struct {
	ProductID       string              `json:"productId"`
	Quantity        *int                `json:"quantity,omitempty"`
	Weight          *float64            `json:"weight,omitempty"`
	AddonIDs        []string            `json:"addonIds,omitempty"`
	SelectedOptions map[string][]string `json:"selectedOptions,omitempty"`
}

type itemPatchRequest struct {
	Quantity        *int                `json:"quantity,omitempty"`
	Weight          *float64            `json:"weight,omitempty"`
	AddonIDs        *[]string           `json:"addonIds,omitempty"`
	SelectedOptions map[string][]string `json:"selectedOptions,omitempty"`
}

type lineItemPayload struct {
	domain.SaleItem
	Total decimal.Decimal `json:"total"`
}

func buildLineItems(items []domain.SaleItem) []lineItemPayload {
	out := make([]lineItemPayload, 0, len(items))
	for _, item := range items {
		out = append(out, lineItemPayload{SaleItem: item, Total: services.ItemTotal(item)})
	}
	return out
}

// itemResolver turns catalog ids from requests into products and line items.
type itemResolver struct {
	catalog    ProductCatalog
	validate   bool
	validation services.ItemValidationConfig
}

func (r itemResolver) product(id string) (domain.Product, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Product{}, fmt.Errorf("%w: productId is required", services.ErrInvalidProduct)
	}
	if r.catalog == nil {
		return domain.Product{}, fmt.Errorf("%w: catalog unavailable", services.ErrInvalidProduct)
	}
	product, ok := r.catalog.Product(id)
	if !ok {
		return domain.Product{}, fmt.Errorf("%w: unknown product %q", services.ErrInvalidProduct, id)
	}
	return product, nil
}

func (r itemResolver) addons(ids []string) ([]domain.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	out := make([]domain.Product, 0, len(ids))
	for _, id := range ids {
		addon, err := r.product(id)
		if err != nil {
			return nil, fmt.Errorf("%w: unknown addon %q", services.ErrInvalidAddon, id)
		}
		if addon.Type != domain.ProductTypeAddon {
			return nil, fmt.Errorf("%w: %q is not an addon", services.ErrInvalidAddon, id)
		}
		out = append(out, addon)
	}
	return out, nil
}

func (r itemResolver) addRequest(req itemRequest) (services.AddItemRequest, error) {
	product, err := r.product(req.ProductID)
	if err != nil {
		return services.AddItemRequest{}, err
	}
	addons, err := r.addons(req.AddonIDs)
	if err != nil {
		return services.AddItemRequest{}, err
	}
	return services.AddItemRequest{
		Product: product,
		Options: services.AddItemOptions{
			Quantity:        req.Quantity,
			Weight:          req.Weight,
			Addons:          addons,
			SelectedOptions: domain.SelectedOptions(req.SelectedOptions),
		},
	}, nil
}

// saleItem builds a validated line item for orders, which do not pass through a cart.
func (r itemResolver) saleItem(req itemRequest) (domain.SaleItem, error) {
	add, err := r.addRequest(req)
	if err != nil {
		return domain.SaleItem{}, err
	}
	item, err := services.NewLineItem(add.Product, add.Options)
	if err != nil {
		return domain.SaleItem{}, err
	}
	if r.validate {
		if err := services.ValidateItem(item, r.validation).FirstError(); err != nil {
			return domain.SaleItem{}, err
		}
	}
	return item, nil
}

func (r itemResolver) saleItems(reqs []itemRequest) ([]domain.SaleItem, error) {
	items := make([]domain.SaleItem, 0, len(reqs))
	for idx, req := range reqs {
		item, err := r.saleItem(req)
		if err != nil {
			return nil, fmt.Errorf("items[%d]: %w", idx, err)
		}
		items = append(items, item)
	}
	return items, nil
}

func (r itemResolver) itemUpdate(req itemPatchRequest) (services.ItemUpdate, error) {
	update := services.ItemUpdate{
		Quantity:        req.Quantity,
		Weight:          req.Weight,
		SelectedOptions: domain.SelectedOptions(req.SelectedOptions),
	}
	if req.AddonIDs != nil {
		addons, err := r.addons(*req.AddonIDs)
		if err != nil {
			return services.ItemUpdate{}, err
		}
		if addons == nil {
			addons = []domain.Product{}
		}
		update.Addons = &addons
	}
	return update, nil
}

func indexParam(raw string) (int, error) {
	idx, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || idx < 0 {
		return 0, fmt.Errorf("%w: invalid item index %q", services.ErrItemNotFound, raw)
	}
	return idx, nil
}

