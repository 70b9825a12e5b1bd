package services

import (
	"errors"

	"github.com/acai-counter/pos/internal/domain"
)

// Line item and cart failures.
var (
	// ErrInvalidProduct indicates the line item has no product or the product has no id.
	ErrInvalidProduct = errors.New("pos: invalid product")
	// ErrWeightRequired indicates a weight-priced product was supplied without a positive weight.
	ErrWeightRequired = errors.New("pos: weight required")
	// ErrInvalidQuantity indicates the quantity is outside the accepted bounds.
	ErrInvalidQuantity = errors.New("pos: invalid quantity")
	// ErrValidation is the generic bound violation.
	ErrValidation = errors.New("pos: validation error")
	// ErrMaxItemsExceeded indicates the cart already holds its maximum number of line items.
	ErrMaxItemsExceeded = errors.New("pos: max items exceeded")
	// ErrStorage indicates the persistence substrate rejected a read or write.
	ErrStorage = errors.New("pos: storage error")
	// ErrItemNotFound indicates the requested line item index does not exist.
	ErrItemNotFound = errors.New("pos: item not found")
	// ErrCartDisabled indicates the cart store has been switched off.
	ErrCartDisabled = errors.New("pos: cart disabled")
	// ErrOptionLimitExceeded indicates the item selects options beyond what the product allows.
	ErrOptionLimitExceeded = errors.New("pos: option limit exceeded")
	// ErrInvalidAddon indicates an add-on entry is not an add-on product.
	ErrInvalidAddon = errors.New("pos: invalid addon")
)

// Order and sale failures.
var (
	ErrOrderNotFound         = errors.New("pos: order not found")
	ErrOrderNotOpen          = errors.New("pos: order is not open")
	ErrCustomerNameRequired  = errors.New("customer name required")
	ErrNoItems               = errors.New("at least one item required")
	ErrInsufficientCash      = errors.New("insufficient cash")
	ErrAdjustmentOutOfBounds = errors.New("pos: adjusted total out of bounds")
	ErrInvalidPaymentMethod  = errors.New("pos: invalid payment method")
	ErrSaleNotFound          = errors.New("pos: sale not found")
)

// Error codes exposed to collaborators.
const (
	CodeInvalidProduct      = "INVALID_PRODUCT"
	CodeWeightRequired      = "WEIGHT_REQUIRED"
	CodeInvalidQuantity     = "INVALID_QUANTITY"
	CodeValidation          = "VALIDATION_ERROR"
	CodeMaxItemsExceeded    = "MAX_ITEMS_EXCEEDED"
	CodeStorage             = "STORAGE_ERROR"
	CodeItemNotFound        = "ITEM_NOT_FOUND"
	CodeCartDisabled        = "CART_DISABLED"
	CodeOptionLimitExceeded = "OPTION_LIMIT_EXCEEDED"
	CodeInvalidAddon        = "INVALID_ADDON"
	CodeOrderNotFound       = "ORDER_NOT_FOUND"
	CodeOrderNotOpen        = "ORDER_NOT_OPEN"
	CodeCustomerName        = "CUSTOMER_NAME_REQUIRED"
	CodeNoItems             = "NO_ITEMS"
	CodeInsufficientCash    = "INSUFFICIENT_CASH"
	CodeAdjustment          = "ADJUSTMENT_OUT_OF_BOUNDS"
	CodeInvalidPayment      = "INVALID_PAYMENT_METHOD"
	CodeSaleNotFound        = "SALE_NOT_FOUND"
	CodeUnknown             = "UNKNOWN_ERROR"
)

var errorCodes = []struct {
	err  error
	code string
}{
	{ErrInvalidProduct, CodeInvalidProduct},
	{ErrWeightRequired, CodeWeightRequired},
	{ErrInvalidQuantity, CodeInvalidQuantity},
	{ErrMaxItemsExceeded, CodeMaxItemsExceeded},
	{ErrStorage, CodeStorage},
	{ErrItemNotFound, CodeItemNotFound},
	{ErrCartDisabled, CodeCartDisabled},
	{ErrOptionLimitExceeded, CodeOptionLimitExceeded},
	{domain.ErrOptionLimitExceeded, CodeOptionLimitExceeded},
	{domain.ErrOptionCategoryUnknown, CodeOptionLimitExceeded},
	{ErrInvalidAddon, CodeInvalidAddon},
	{ErrOrderNotFound, CodeOrderNotFound},
	{ErrOrderNotOpen, CodeOrderNotOpen},
	{ErrCustomerNameRequired, CodeCustomerName},
	{ErrNoItems, CodeNoItems},
	{ErrInsufficientCash, CodeInsufficientCash},
	{ErrAdjustmentOutOfBounds, CodeAdjustment},
	{ErrInvalidPaymentMethod, CodeInvalidPayment},
	{ErrSaleNotFound, CodeSaleNotFound},
	{ErrValidation, CodeValidation},
}

// CodeOf maps err onto the error taxonomy. It returns an empty string for nil.
func CodeOf(err error) string {
	if err == nil {
		return ""
	}
	for _, entry := range errorCodes {
		if errors.Is(err, entry.err) {
			return entry.code
		}
	}
	return CodeUnknown
}
