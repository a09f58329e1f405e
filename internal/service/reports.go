package service

import (
	"context"
	"fmt"
	"sort"

	"pantry-service/internal/ledger"
	"pantry-service/internal/models"
	"pantry-service/internal/store"
	"pantry-service/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const recentOrdersOnDashboard = 10

// ReportService computes the staff reports
type ReportService struct {
	store  *store.Store
	logger *zap.Logger
}

// NewReportService creates a new report service
func NewReportService(store *store.Store) *ReportService {
	return &ReportService{store: store, logger: util.GetLogger()}
}

// RevenueLine is the revenue of one product
type RevenueLine struct {
	ProductID string       `json:"product_id"`
	Quantity  int64        `json:"quantity"`
	Sales     models.Money `json:"sales"`
	Margin    models.Money `json:"margin"`
}

// RevenueReport totals what went out to customers
type RevenueReport struct {
	Lines         []RevenueLine `json:"lines"`
	TotalQuantity int64         `json:"total_quantity"`
	TotalSales    models.Money  `json:"total_sales"`
	TotalMargin   models.Money  `json:"total_margin"`
}

// Revenue walks every movement into Customer. Sales use the price captured
// on the movement; margin uses the product's current price and purchase price.
func (s *ReportService) Revenue(ctx context.Context) (RevenueReport, error) {
	ctx, span := util.StartSpan(ctx, "ReportService.Revenue")
	defer span.End()

	movements, err := s.store.ListMovements(ctx, store.MovementFilter{ToLocation: models.LocationCustomer})
	if err != nil {
		return RevenueReport{}, err
	}
	products, err := s.store.GetProducts(ctx, "")
	if err != nil {
		return RevenueReport{}, err
	}
	byID := make(map[string]models.Product, len(products))
	for _, p := range products {
		byID[p.ProductID] = p
	}

	lines := make(map[string]*RevenueLine)
	var report RevenueReport
	for _, m := range movements {
		product, ok := byID[m.ProductID]
		if !ok {
			continue
		}
		line, ok := lines[m.ProductID]
		if !ok {
			line = &RevenueLine{ProductID: m.ProductID}
			lines[m.ProductID] = line
		}
		qty := decimal.NewFromInt(m.Qty)
		sales := m.Price.Mul(qty)
		margin := product.Price.Sub(product.PurchasePrice.Decimal).Mul(qty)

		line.Quantity += m.Qty
		line.Sales = models.NewMoney(line.Sales.Add(sales))
		line.Margin = models.NewMoney(line.Margin.Add(margin))
		report.TotalQuantity += m.Qty
		report.TotalSales = models.NewMoney(report.TotalSales.Add(sales))
		report.TotalMargin = models.NewMoney(report.TotalMargin.Add(margin))
	}

	report.Lines = make([]RevenueLine, 0, len(lines))
	for _, line := range lines {
		report.Lines = append(report.Lines, *line)
	}
	sort.Slice(report.Lines, func(i, j int) bool { return report.Lines[i].ProductID < report.Lines[j].ProductID })
	return report, nil
}

// BalanceReport is the per-location staff balance of every product
func (s *ReportService) BalanceReport(ctx context.Context) (map[string]map[string]int64, error) {
	movements, err := s.store.ListMovements(ctx, store.MovementFilter{})
	if err != nil {
		return nil, err
	}
	return ledger.BalanceReportAll(movements), nil
}

// Dashboard is the staff landing page summary
type Dashboard struct {
	Products      int                        `json:"products"`
	Locations     int                        `json:"locations"`
	Clients       int                        `json:"clients"`
	Movements     int                        `json:"movements"`
	OrdersByState map[models.OrderStatus]int `json:"orders_by_status"`
	PendingOrders int                        `json:"pending_orders"`
	RecentOrders  []models.Order             `json:"recent_orders"`
}

// Dashboard counts the catalog and lists the most recent orders
func (s *ReportService) Dashboard(ctx context.Context) (Dashboard, error) {
	ctx, span := util.StartSpan(ctx, "ReportService.Dashboard")
	defer span.End()

	var d Dashboard
	counts := []struct {
		table string
		dest  *int
	}{
		{"products", &d.Products},
		{"locations", &d.Locations},
		{"clients", &d.Clients},
		{"movements", &d.Movements},
	}
	for _, c := range counts {
		n, err := s.store.CountRows(ctx, c.table)
		if err != nil {
			return Dashboard{}, fmt.Errorf("failed to count %s: %w", c.table, err)
		}
		*c.dest = n
	}

	byStatus, err := s.store.CountOrdersByStatus(ctx)
	if err != nil {
		return Dashboard{}, fmt.Errorf("failed to count orders: %w", err)
	}
	d.OrdersByState = byStatus
	d.PendingOrders = byStatus[models.OrderStatusPending]

	d.RecentOrders, err = s.store.ListOrders(ctx, store.OrderFilter{Limit: recentOrdersOnDashboard})
	if err != nil {
		return Dashboard{}, err
	}
	return d, nil
}
