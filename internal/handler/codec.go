package handler

import (
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/electro-checkout/internal/domain/order"
	"github.com/xenking/electro-checkout/internal/domain/pricing"
)

// decodeOrderRequest parses
//
//	{"userId": "...", "items": [{"productId": "...", "quantity": 1}], "couponCode": "..."}
//
// userId and couponCode may be omitted or null. Unknown fields are ignored.
func decodeOrderRequest(data []byte) (order.PlaceOrderRequest, error) {
	var req order.PlaceOrderRequest
	d := jx.DecodeBytes(data)
	if d.Next() != jx.Object {
		return req, errors.New("body must be a JSON object")
	}

	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "userId":
			return optString(d, &req.UserID)
		case "couponCode":
			return optString(d, &req.CouponCode)
		case "items":
			return d.Arr(func(d *jx.Decoder) error {
				item, err := decodeItem(d)
				if err != nil {
					return errors.Wrapf(err, "items[%d]", len(req.Items))
				}
				req.Items = append(req.Items, item)
				return nil
			})
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return order.PlaceOrderRequest{}, err
	}
	if d.Next() != jx.Invalid {
		return order.PlaceOrderRequest{}, errors.New("unexpected data after JSON object")
	}
	return req, nil
}

func decodeItem(d *jx.Decoder) (order.Item, error) {
	var (
		item   order.Item
		hasQty bool
	)
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "productId":
			item.ProductID, err = d.Str()
		case "quantity":
			item.Quantity, err = d.Int()
			hasQty = true
		default:
			return d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, string(key))
		}
		return nil
	})
	if err != nil {
		return order.Item{}, err
	}
	if item.ProductID == "" {
		return order.Item{}, errors.New("productId is required")
	}
	if !hasQty {
		return order.Item{}, errors.New("quantity is required")
	}
	return item, nil
}

func optString(d *jx.Decoder, dst *string) error {
	if d.Next() == jx.Null {
		return d.Null()
	}
	s, err := d.Str()
	if err != nil {
		return err
	}
	*dst = s
	return nil
}

func money(e *jx.Encoder, field string, v decimal.Decimal) {
	e.FieldStart(field)
	e.Str(v.StringFixed(2))
}

func encodeLineItems(e *jx.Encoder, items []pricing.LineItem) {
	e.FieldStart("items")
	e.ArrStart()
	for _, li := range items {
		e.ObjStart()
		e.FieldStart("productId")
		e.Str(li.ProductID)
		e.FieldStart("name")
		e.Str(li.Name)
		money(e, "unitPrice", li.UnitPrice)
		e.FieldStart("quantity")
		e.Int(li.Quantity)
		money(e, "total", li.Total())
		e.ObjEnd()
	}
	e.ArrEnd()
}

func encodeTotals(e *jx.Encoder, t pricing.Totals) {
	money(e, "subTotal", t.SubTotal)
	money(e, "discountAmount", t.DiscountAmount)
	money(e, "taxAmount", t.TaxAmount)
	money(e, "shippingAmount", t.ShippingAmount)
	money(e, "totalAmount", t.TotalAmount)
}

func writeAssembly(e *jx.Encoder, a *order.Assembly) {
	e.ObjStart()
	encodeLineItems(e, a.Items)
	encodeTotals(e, a.Totals)
	if a.Coupon != nil {
		e.FieldStart("couponCode")
		e.Str(a.Coupon.Code)
	}
	e.ObjEnd()
}

func encodeAssembly(a *order.Assembly) []byte {
	var e jx.Encoder
	writeAssembly(&e, a)
	return e.Bytes()
}

func encodeOrder(o *order.Order) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("id")
	e.Str(o.ID)
	e.FieldStart("userId")
	e.Str(o.UserID)
	e.FieldStart("status")
	e.Str(string(o.Status))
	if o.CouponCode != "" {
		e.FieldStart("couponCode")
		e.Str(o.CouponCode)
	}
	e.FieldStart("createdAt")
	e.Str(o.CreatedAt.UTC().Format(time.RFC3339))
	encodeLineItems(&e, o.Items)
	encodeTotals(&e, o.Totals)
	e.ObjEnd()
	return e.Bytes()
}

// apiError is the error body. Reason is set for coupon rejections and
// Repriced for coupons lost to a concurrent order.
type apiError struct {
	Message  string
	Reason   string
	Repriced *order.Assembly
}

func writeError(w http.ResponseWriter, status int, ae apiError) {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("code")
	e.Int(status)
	e.FieldStart("message")
	e.Str(ae.Message)
	if ae.Reason != "" {
		e.FieldStart("reason")
		e.Str(ae.Reason)
	}
	if ae.Repriced != nil {
		e.FieldStart("repriced")
		writeAssembly(&e, ae.Repriced)
	}
	e.ObjEnd()
	writeJSON(w, status, e.Bytes())
}

func writeJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
