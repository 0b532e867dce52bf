package settlement

import (
	"math"

	"fanhub/pkg/utils"
)

// bpsScale is 100% in basis points
const bpsScale = 10000

// Quote is the price breakdown of one settlement. TotalPrice leaves the
// buyer, SellerAmount reaches the seller and CommissionAmount is what the
// platform keeps, so TotalPrice == SellerAmount + CommissionAmount.
type Quote struct {
	UnitPrice        int64
	Quantity         int
	OriginalPrice    int64
	DiscountAmount   int64
	TotalPrice       int64
	SellerAmount     int64
	CommissionAmount int64
	CommissionBps    int
}

// Price computes a quote. Discount and seller share are floored, so any
// remainder falls to the platform.
func Price(unitPrice int64, quantity int, discountPercent int, commissionBps int) (Quote, error) {
	switch {
	case unitPrice <= 0:
		return Quote{}, utils.NewError(utils.CodeInvalidParam, "price must be positive")
	case quantity < 1:
		return Quote{}, utils.NewError(utils.CodeInvalidParam, "quantity must be at least 1")
	case discountPercent < 0 || discountPercent > 100:
		return Quote{}, utils.Errorf(utils.CodeInvalidParam, "discount %d%% out of range", discountPercent)
	case commissionBps < 0 || commissionBps > bpsScale:
		return Quote{}, utils.Errorf(utils.CodeInvalidParam, "commission %d bps out of range", commissionBps)
	case unitPrice > math.MaxInt64/bpsScale/int64(quantity):
		return Quote{}, utils.NewError(utils.CodeInvalidParam, "amount too large")
	}

	original := unitPrice * int64(quantity)
	discount := original * int64(discountPercent) / 100
	total := original - discount
	seller := total * int64(bpsScale-commissionBps) / bpsScale

	return Quote{
		UnitPrice:        unitPrice,
		Quantity:         quantity,
		OriginalPrice:    original,
		DiscountAmount:   discount,
		TotalPrice:       total,
		SellerAmount:     seller,
		CommissionAmount: total - seller,
		CommissionBps:    commissionBps,
	}, nil
}
