package memory

import (
	"context"
	"fmt"
	"log"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"gymstock/backend/internal/bom"
	"gymstock/backend/internal/domain"
	"gymstock/backend/internal/store"
	"gymstock/backend/internal/xid"
)

// Store is the in-memory Repository. A single RWMutex serializes every
// ledger-affecting operation, so the multi-step atomic units of RecordSale,
// RecordPayment and RecordPurchase can never interleave with each other or
// with a concurrent read.
type Store struct {
	mu sync.RWMutex

	nextProductID  int64
	nextUserID     int64
	nextSaleID     int64
	nextPaymentID  int64
	nextPurchaseID int64

	products  map[int64]domain.Product
	recipes   map[int64][]domain.RecipeComponent
	users     map[int64]domain.User
	sales     []domain.Sale
	payments  []domain.Payment
	purchases []domain.Purchase
	auditLogs []domain.AuditLog
	accounts  map[string]domain.StaffAccount
}

func New() *Store {
	return &Store{
		products:  make(map[int64]domain.Product),
		recipes:   make(map[int64][]domain.RecipeComponent),
		users:     make(map[int64]domain.User),
		sales:     make([]domain.Sale, 0, 128),
		payments:  make([]domain.Payment, 0, 64),
		purchases: make([]domain.Purchase, 0, 64),
		auditLogs: make([]domain.AuditLog, 0, 128),
		accounts:  make(map[string]domain.StaffAccount),
	}
}

// NewSeeded returns a store preloaded with a demo catalog for dev mode:
// sellable supplements, bulk ingredients measured in gr/ml, and two
// composite products with recipes.
func NewSeeded() *Store {
	s := New()
	s.accounts = seedAccounts()

	products := []domain.Product{
		{Name: "Proteína Whey 5lb", Category: "suplementos", Kind: domain.KindSimple, Unit: "unid", PriceCents: 18500, Stock: 10},
		{Name: "Creatina Monohidratada", Category: "suplementos", Kind: domain.KindSimple, Unit: "unid", PriceCents: 9900, Stock: 15},
		{Name: "Shaker 600ml", Category: "accesorios", Kind: domain.KindSimple, Unit: "unid", PriceCents: 3500, Stock: 20},
		{Name: "Proteína a granel", Category: "insumos", Kind: domain.KindIngredient, Unit: "gr", PriceCents: 8, Stock: 5000},
		{Name: "Leche deslactosada", Category: "insumos", Kind: domain.KindIngredient, Unit: "ml", PriceCents: 1, Stock: 10000},
		{Name: "Malteada de Proteína", Category: "bebidas", Kind: domain.KindComposite, Unit: "unid", PriceCents: 1200, Stock: 50},
		{Name: "Combo Proteína + Shaker", Category: "combos", Kind: domain.KindComposite, Unit: "unid", PriceCents: 20500, Stock: 10},
	}
	for _, p := range products {
		s.nextProductID++
		p.ID = s.nextProductID
		s.products[p.ID] = p
	}

	// Malteada = 30 gr of bulk protein + 250 ml of milk; Combo = 1 whey + 1 shaker.
	s.recipes[6] = []domain.RecipeComponent{{ComponentID: 4, Qty: 30}, {ComponentID: 5, Qty: 250}}
	s.recipes[7] = []domain.RecipeComponent{{ComponentID: 1, Qty: 1}, {ComponentID: 3, Qty: 1}}

	for _, u := range []domain.User{
		{Name: "Carlos Pérez", Phone: "3001234567"},
		{Name: "Laura Gómez", Phone: "3109876543"},
	} {
		s.nextUserID++
		u.ID = s.nextUserID
		s.users[u.ID] = u
	}

	return s
}

// seedAccounts builds the initial staff accounts for dev/demo mode.
// Credentials are read from SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD;
// hardcoded dev defaults are used with a warning when unset. Production
// deployments use PostgreSQL (DATABASE_URL) and never hit this path.
func seedAccounts() map[string]domain.StaffAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	accounts := map[string]domain.StaffAccount{}
	for _, a := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"cashier", cashierPwd, "cashier"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(a.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", a.username, err)
		}
		accounts[a.username] = domain.StaffAccount{
			Username:  a.username,
			Password:  string(hash),
			Role:      a.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return accounts
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		products = append(products, p)
	}

	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.Category == b.Category {
			return cmpString(a.Name, b.Name)
		}
		return cmpString(a.Category, b.Category)
	})

	return products, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" || product.PriceCents < 0 {
		return nil, store.ErrInvalidInput
	}
	if !isValidKind(product.Kind) {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextProductID++
	product.ID = s.nextProductID
	s.products[product.ID] = product

	created := product
	return &created, nil
}

func (s *Store) GetProduct(_ context.Context, id int64) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.products[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyProduct := product
	return &copyProduct, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" || product.PriceCents < 0 {
		return nil, store.ErrInvalidInput
	}
	if !isValidKind(product.Kind) {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[product.ID]; !exists {
		return nil, store.ErrNotFound
	}

	s.products[product.ID] = product
	updated := product
	return &updated, nil
}

func (s *Store) DeleteProduct(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[id]; !exists {
		return store.ErrNotFound
	}

	// No cascade: recipe edges and sale rows referencing the product stay
	// behind, matching the reference system's dangling-reference latitude.
	delete(s.products, id)
	return nil
}

func (s *Store) AdjustStock(_ context.Context, id int64, delta float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, exists := s.products[id]
	if !exists {
		return store.ErrNotFound
	}

	product.Stock += bom.RoundDelta(delta)
	s.products[id] = product
	return nil
}

func (s *Store) SetRecipe(_ context.Context, productID int64, components []domain.RecipeComponent) error {
	if len(components) == 0 {
		return store.ErrInvalidInput
	}
	for _, c := range components {
		if c.ComponentID < 1 || c.Qty <= 0 {
			return store.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[productID]; !exists {
		return store.ErrNotFound
	}

	replaced := make([]domain.RecipeComponent, len(components))
	for i, c := range components {
		replaced[i] = domain.RecipeComponent{ComponentID: c.ComponentID, Qty: c.Qty}
	}

	prospective := s.graphLocked()
	prospective[productID] = replaced
	if err := bom.Validate(prospective, productID); err != nil {
		return err
	}

	s.recipes[productID] = replaced
	return nil
}

func (s *Store) GetRecipe(_ context.Context, productID int64) ([]domain.RecipeComponent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	components := s.recipes[productID]
	result := make([]domain.RecipeComponent, 0, len(components))
	for _, c := range components {
		if p, ok := s.products[c.ComponentID]; ok {
			c.ComponentName = p.Name
		}
		result = append(result, c)
	}
	return result, nil
}

func (s *Store) ClearRecipe(_ context.Context, productID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.recipes, productID)
	return nil
}

func (s *Store) CreateUser(_ context.Context, user domain.User) (*domain.User, error) {
	if user.Name == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextUserID++
	user.ID = s.nextUserID
	s.users[user.ID] = user

	created := user
	return &created, nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.User, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, u)
	}
	slices.SortFunc(users, func(a, b domain.User) int {
		return int(a.ID - b.ID)
	})
	return users, nil
}

func (s *Store) GetUser(_ context.Context, id int64) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, exists := s.users[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyUser := user
	return &copyUser, nil
}

func (s *Store) DeleteUser(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[id]; !exists {
		return store.ErrNotFound
	}

	// Sale and payment rows referencing the user are kept, not cascaded.
	delete(s.users, id)
	return nil
}

// RecordSale applies the full atomic unit of a sale: top-level stock check,
// recursive leaf deductions, sale insert and wallet debit. All validation
// happens before the first mutation so a failure leaves no partial state.
func (s *Store) RecordSale(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	if sale.ProductID < 1 || sale.Quantity < 1 || sale.TotalCents < 0 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	product, exists := s.products[sale.ProductID]
	if !exists {
		return nil, fmt.Errorf("%w: product %d", store.ErrNotFound, sale.ProductID)
	}

	// Sufficiency is checked against the requested product's own recorded
	// stock only; leaf-level feasibility along the recipe tree is not
	// verified, so a composite sale may legitimately drive a leaf negative.
	if product.Stock < sale.Quantity {
		return nil, fmt.Errorf("%w: product %d has %d in stock", store.ErrInsufficientStock, product.ID, product.Stock)
	}

	var user domain.User
	if sale.UserID != nil {
		u, ok := s.users[*sale.UserID]
		if !ok {
			return nil, fmt.Errorf("%w: user %d", store.ErrNotFound, *sale.UserID)
		}
		user = u
	}

	leaves, err := bom.Explode(s.graphLocked(), sale.ProductID, float64(sale.Quantity))
	if err != nil {
		return nil, err
	}

	for id, qty := range leaves {
		p, ok := s.products[id]
		if !ok {
			// Dangling recipe edge to a deleted product: the deduction
			// silently targets nothing, as in the reference system.
			continue
		}
		p.Stock -= bom.RoundDelta(qty)
		s.products[id] = p
	}

	s.nextSaleID++
	sale.ID = s.nextSaleID
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}
	s.sales = append(s.sales, sale)

	if sale.UserID != nil {
		user.BalanceCents -= sale.TotalCents
		s.users[user.ID] = user
	}

	created := sale
	return &created, nil
}

func (s *Store) RecordPayment(_ context.Context, payment domain.Payment) (*domain.Payment, error) {
	if payment.UserID < 1 || payment.AmountCents < 1 || payment.Method == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.users[payment.UserID]
	if !exists {
		return nil, fmt.Errorf("%w: user %d", store.ErrNotFound, payment.UserID)
	}

	s.nextPaymentID++
	payment.ID = s.nextPaymentID
	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = time.Now().UTC()
	}
	s.payments = append(s.payments, payment)

	user.BalanceCents += payment.AmountCents
	s.users[user.ID] = user

	created := payment
	return &created, nil
}

func (s *Store) RecordPurchase(_ context.Context, purchase domain.Purchase) (*domain.Purchase, error) {
	if purchase.ProductID < 1 || purchase.Quantity < 1 || purchase.CostCents < 0 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	product, exists := s.products[purchase.ProductID]
	if !exists {
		return nil, fmt.Errorf("%w: product %d", store.ErrNotFound, purchase.ProductID)
	}

	// Restocking is always at the leaf the purchase names; the recipe graph
	// is never traversed on the way in.
	product.Stock += purchase.Quantity
	s.products[product.ID] = product

	s.nextPurchaseID++
	purchase.ID = s.nextPurchaseID
	if purchase.CreatedAt.IsZero() {
		purchase.CreatedAt = time.Now().UTC()
	}
	s.purchases = append(s.purchases, purchase)

	created := purchase
	return &created, nil
}

func (s *Store) ListSales(_ context.Context, limit int) ([]domain.SaleRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]domain.SaleRecord, 0, len(s.sales))
	for _, sale := range s.sales {
		record := domain.SaleRecord{
			ID:         sale.ID,
			ProductID:  sale.ProductID,
			Quantity:   sale.Quantity,
			TotalCents: sale.TotalCents,
			CreatedAt:  sale.CreatedAt,
		}
		if p, ok := s.products[sale.ProductID]; ok {
			record.ProductName = p.Name
		}
		if sale.UserID != nil {
			if u, ok := s.users[*sale.UserID]; ok {
				record.UserName = u.Name
			}
		}
		records = append(records, record)
	}

	slices.SortFunc(records, func(a, b domain.SaleRecord) int {
		return compareDesc(a.CreatedAt, b.CreatedAt, a.ID, b.ID)
	})
	return clip(records, limit), nil
}

func (s *Store) ListPurchases(_ context.Context, limit int) ([]domain.PurchaseRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]domain.PurchaseRecord, 0, len(s.purchases))
	for _, purchase := range s.purchases {
		record := domain.PurchaseRecord{
			ID:        purchase.ID,
			ProductID: purchase.ProductID,
			Quantity:  purchase.Quantity,
			CostCents: purchase.CostCents,
			CreatedAt: purchase.CreatedAt,
		}
		if p, ok := s.products[purchase.ProductID]; ok {
			record.ProductName = p.Name
		}
		records = append(records, record)
	}

	slices.SortFunc(records, func(a, b domain.PurchaseRecord) int {
		return compareDesc(a.CreatedAt, b.CreatedAt, a.ID, b.ID)
	})
	return clip(records, limit), nil
}

func (s *Store) GetFinancialSummary(_ context.Context) (domain.FinancialSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary := domain.FinancialSummary{ByUser: make([]domain.UserSalesSummary, 0, len(s.users))}

	salesByUser := make(map[int64]int64)
	for _, sale := range s.sales {
		summary.TotalSalesCents += sale.TotalCents
		if sale.UserID != nil {
			salesByUser[*sale.UserID] += sale.TotalCents
		}
	}
	for _, purchase := range s.purchases {
		summary.TotalPurchasesCents += purchase.CostCents
	}

	for userID, salesCents := range salesByUser {
		user, ok := s.users[userID]
		if !ok {
			continue
		}
		summary.ByUser = append(summary.ByUser, domain.UserSalesSummary{
			UserID:       userID,
			Name:         user.Name,
			SalesCents:   salesCents,
			BalanceCents: user.BalanceCents,
		})
	}
	slices.SortFunc(summary.ByUser, func(a, b domain.UserSalesSummary) int {
		return int(a.UserID - b.UserID)
	})

	return summary, nil
}

func (s *Store) GetCombinedHistory(_ context.Context, limit int) ([]domain.HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]domain.HistoryEntry, 0, len(s.sales)+len(s.payments))
	for _, sale := range s.sales {
		entry := domain.HistoryEntry{
			ID:          sale.ID,
			Kind:        domain.HistoryKindSale,
			Info:        strconv.FormatInt(sale.Quantity, 10),
			AmountCents: sale.TotalCents,
			CreatedAt:   sale.CreatedAt,
		}
		if p, ok := s.products[sale.ProductID]; ok {
			entry.Detail = p.Name
		}
		entries = append(entries, entry)
	}
	for _, payment := range s.payments {
		entry := domain.HistoryEntry{
			ID:          payment.ID,
			Kind:        domain.HistoryKindPayment,
			Info:        payment.Method,
			AmountCents: payment.AmountCents,
			CreatedAt:   payment.CreatedAt,
		}
		if u, ok := s.users[payment.UserID]; ok {
			entry.Detail = u.Name
		}
		entries = append(entries, entry)
	}

	slices.SortFunc(entries, func(a, b domain.HistoryEntry) int {
		return compareDesc(a.CreatedAt, b.CreatedAt, a.ID, b.ID)
	})
	return clip(entries, limit), nil
}

func (s *Store) GetUserStatement(_ context.Context, userID int64) (domain.UserStatement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, exists := s.users[userID]
	if !exists {
		return domain.UserStatement{}, store.ErrNotFound
	}

	statement := domain.UserStatement{
		UserID:       userID,
		UserName:     user.Name,
		BalanceCents: user.BalanceCents,
		Entries:      make([]domain.HistoryEntry, 0, 16),
	}

	for _, sale := range s.sales {
		if sale.UserID == nil || *sale.UserID != userID {
			continue
		}
		entry := domain.HistoryEntry{
			ID:          sale.ID,
			Kind:        domain.HistoryKindSale,
			Info:        strconv.FormatInt(sale.Quantity, 10),
			AmountCents: sale.TotalCents,
			CreatedAt:   sale.CreatedAt,
		}
		if p, ok := s.products[sale.ProductID]; ok {
			entry.Detail = p.Name
		}
		statement.Entries = append(statement.Entries, entry)
		statement.TotalSalesCents += sale.TotalCents
	}
	for _, payment := range s.payments {
		if payment.UserID != userID {
			continue
		}
		statement.Entries = append(statement.Entries, domain.HistoryEntry{
			ID:          payment.ID,
			Kind:        domain.HistoryKindPayment,
			Detail:      payment.Method,
			Info:        "-",
			AmountCents: payment.AmountCents,
			CreatedAt:   payment.CreatedAt,
		})
		statement.TotalPaymentsCents += payment.AmountCents
	}

	slices.SortFunc(statement.Entries, func(a, b domain.HistoryEntry) int {
		return compareDesc(a.CreatedAt, b.CreatedAt, a.ID, b.ID)
	})

	return statement, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, len(s.auditLogs))
	copy(result, s.auditLogs)
	slices.SortFunc(result, func(a, b domain.AuditLog) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	return clip(result, limit), nil
}

func (s *Store) CreateAccount(_ context.Context, account domain.StaffAccount) error {
	if account.Username == "" || account.Password == "" {
		return store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accounts[account.Username]; exists {
		return store.ErrInvalidInput
	}
	s.accounts[account.Username] = account
	return nil
}

func (s *Store) ListAccounts(_ context.Context) ([]domain.StaffAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.StaffAccount, 0, len(s.accounts))
	for _, account := range s.accounts {
		result = append(result, account)
	}
	slices.SortFunc(result, func(a, b domain.StaffAccount) int {
		return cmpString(a.Username, b.Username)
	})
	return result, nil
}

func (s *Store) UpdateAccountPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, exists := s.accounts[username]
	if !exists {
		return store.ErrNotFound
	}
	account.Password = password
	s.accounts[username] = account
	return nil
}

// graphLocked snapshots the recipe graph. Callers must hold s.mu.
func (s *Store) graphLocked() bom.Graph {
	g := make(bom.Graph, len(s.recipes))
	for id, components := range s.recipes {
		g[id] = components
	}
	return g
}

func isValidKind(kind string) bool {
	switch kind {
	case domain.KindSimple, domain.KindIngredient, domain.KindComposite:
		return true
	}
	return false
}

func cmpString(a, b string) int {
	return strings.Compare(a, b)
}

func compareDesc(at, bt time.Time, aID, bID int64) int {
	if at.Equal(bt) {
		return int(bID - aID)
	}
	if at.After(bt) {
		return -1
	}
	return 1
}

func clip[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}
