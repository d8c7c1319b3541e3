package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xenking/electro-checkout/internal/domain/coupon"
	"github.com/xenking/electro-checkout/internal/domain/pricing"
	"github.com/xenking/electro-checkout/internal/domain/product"
)

const instrumentationName = "github.com/xenking/electro-checkout/internal/domain/order"

// ErrEmptyItems is returned when an order request has no items.
var ErrEmptyItems = errors.New("items required")

// ProductNotFoundError indicates a requested product does not exist or is
// no longer sold.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

// CouponUnavailableError is returned by PlaceOrder when the coupon's last
// use was taken by a concurrent order. Nothing was persisted; Repriced holds
// the same cart priced without the coupon so the caller can resubmit.
type CouponUnavailableError struct {
	Code     string
	Repriced *Assembly
}

func (e *CouponUnavailableError) Error() string {
	return fmt.Sprintf("coupon %s became unavailable", e.Code)
}

func (e *CouponUnavailableError) Unwrap() error {
	return coupon.ErrConcurrentLimitExceeded
}

// PlaceOrderRequest holds the input for quoting or placing an order.
type PlaceOrderRequest struct {
	UserID     string
	Items      []Item
	CouponCode string
}

// Option configures a Service.
type Option func(s *Service)

// WithTracerProvider sets the tracer provider. Defaults to a no-op provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) { s.tracer = tp.Tracer(instrumentationName) }
}

// WithMeterProvider sets the meter provider. Defaults to a no-op provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(s *Service) { s.meter = mp.Meter(instrumentationName) }
}

// Service encapsulates order quoting and placement.
type Service struct {
	products  product.Repository
	assembler *Assembler
	orders    Repository
	policy    pricing.Policy
	now       func() time.Time

	tracer    trace.Tracer
	meter     metric.Meter
	placed    metric.Int64Counter
	rejected  metric.Int64Counter
	conflicts metric.Int64Counter
}

// NewService creates an order Service with the required domain dependencies.
func NewService(
	products product.Repository,
	assembler *Assembler,
	orders Repository,
	policy pricing.Policy,
	opts ...Option,
) (*Service, error) {
	s := &Service{
		products:  products,
		assembler: assembler,
		orders:    orders,
		policy:    policy,
		now:       time.Now,
		tracer:    tracenoop.NewTracerProvider().Tracer(instrumentationName),
		meter:     metricnoop.NewMeterProvider().Meter(instrumentationName),
	}
	for _, o := range opts {
		o(s)
	}

	var err error
	if s.placed, err = s.meter.Int64Counter("checkout.orders.placed",
		metric.WithDescription("Orders persisted"),
	); err != nil {
		return nil, errors.Wrap(err, "orders.placed counter")
	}
	if s.rejected, err = s.meter.Int64Counter("checkout.coupons.rejected",
		metric.WithDescription("Coupons rejected during validation, by reason"),
	); err != nil {
		return nil, errors.Wrap(err, "coupons.rejected counter")
	}
	if s.conflicts, err = s.meter.Int64Counter("checkout.coupons.redemption_conflicts",
		metric.WithDescription("Redemptions lost to a concurrent order"),
	); err != nil {
		return nil, errors.Wrap(err, "coupons.redemption_conflicts counter")
	}

	return s, nil
}

// Quote prices the request at current catalog prices without persisting or
// redeeming anything.
func (s *Service) Quote(ctx context.Context, req PlaceOrderRequest) (*Assembly, error) {
	ctx, span := s.tracer.Start(ctx, "order.Quote")
	defer span.End()

	a, err := s.assemble(ctx, req)
	if err != nil {
		s.fail(ctx, span, err)
		return nil, err
	}
	return a, nil
}

// PlaceOrder prices the request, then persists the order together with the
// coupon redemption in one transaction.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.PlaceOrder")
	defer span.End()

	a, err := s.assemble(ctx, req)
	if err != nil {
		s.fail(ctx, span, err)
		return nil, err
	}

	o := &Order{
		ID:        uuid.New().String(),
		UserID:    req.UserID,
		Items:     a.Items,
		Totals:    a.Totals,
		Status:    StatusPending,
		CreatedAt: s.now().UTC(),
	}
	if a.Coupon != nil {
		o.CouponID = a.Coupon.ID
		o.CouponCode = a.Coupon.Code
	}
	span.SetAttributes(attribute.String("order.id", o.ID))

	if _, err := s.orders.Create(ctx, o, a.Redemption(req.UserID, o.ID)); err != nil {
		if errors.Is(err, coupon.ErrConcurrentLimitExceeded) {
			s.conflicts.Add(ctx, 1)
			return nil, s.repriceWithoutCoupon(ctx, span, req, o.CouponCode)
		}
		err = errors.Wrap(err, "create order")
		s.fail(ctx, span, err)
		return nil, err
	}

	s.placed.Add(ctx, 1, metric.WithAttributes(attribute.Bool("coupon", o.CouponCode != "")))
	zctx.From(ctx).Info("Order placed",
		zap.String("order_id", o.ID),
		zap.String("total", o.Totals.TotalAmount.StringFixed(2)),
		zap.String("coupon", o.CouponCode),
	)
	return o, nil
}

func (s *Service) repriceWithoutCoupon(ctx context.Context, span trace.Span, req PlaceOrderRequest, code string) error {
	req.CouponCode = ""
	repriced, err := s.assemble(ctx, req)
	if err != nil {
		err = errors.Wrap(err, "reprice without coupon")
		s.fail(ctx, span, err)
		return err
	}

	zctx.From(ctx).Info("Coupon lost to concurrent redemption",
		zap.String("coupon", code),
		zap.String("repriced_total", repriced.Totals.TotalAmount.StringFixed(2)),
	)
	span.SetStatus(codes.Error, "coupon became unavailable")
	return &CouponUnavailableError{Code: code, Repriced: repriced}
}

// assemble validates items, fetches products in a single batch and prices
// the cart at their current prices.
func (s *Service) assemble(ctx context.Context, req PlaceOrderRequest) (*Assembly, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}

	ids := make([]string, len(req.Items))
	for i, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, &pricing.InvalidLineItemError{ProductID: item.ProductID, Reason: "quantity must be greater than 0"}
		}
		ids[i] = item.ProductID
	}

	fetched, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}

	byID := make(map[string]product.Product, len(fetched))
	for _, p := range fetched {
		byID[p.ID] = p
	}

	cart := make([]CartItem, len(req.Items))
	for i, item := range req.Items {
		p, ok := byID[item.ProductID]
		if !ok {
			return nil, &ProductNotFoundError{ProductID: item.ProductID}
		}
		cart[i] = CartItem{
			ProductID:        p.ID,
			Name:             p.Name,
			Quantity:         item.Quantity,
			CurrentUnitPrice: p.Price,
		}
	}

	return s.assembler.Assemble(ctx, AssembleRequest{
		UserID:     req.UserID,
		Items:      cart,
		CouponCode: req.CouponCode,
	}, s.policy)
}

func (s *Service) fail(ctx context.Context, span trace.Span, err error) {
	var invalid *CouponInvalidError
	if errors.As(err, &invalid) {
		s.rejected.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", string(invalid.Reason))))
		zctx.From(ctx).Debug("Coupon rejected",
			zap.String("coupon", invalid.Code),
			zap.String("reason", string(invalid.Reason)),
		)
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
