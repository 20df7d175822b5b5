package models

import "fmt"

// Side 定义了交易方向的类型
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// Phase 表示机器人当前试图执行的方向，与下一笔订单的方向一致。
type Phase = Side

// Opposite 返回相反的方向
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// Valid 报告方向是否为 BUY 或 SELL
func (s Side) Valid() bool {
	return s == Buy || s == Sell
}

// OperationalState 表示是否存在未完结的订单
type OperationalState string

const (
	Idle             OperationalState = "IDLE"
	WaitingOrderFill OperationalState = "WAITING_ORDER_FILL"
)

// OrderStatus 是交易所订单状态归一化后的取值集合。
type OrderStatus string

const (
	StatusNew      OrderStatus = "NEW"
	StatusOpen     OrderStatus = "OPEN"
	StatusFilled   OrderStatus = "FILLED"
	StatusCanceled OrderStatus = "CANCELED"
	StatusRejected OrderStatus = "REJECTED"
)

// Final 报告订单是否已经结束（成交、撤销或被拒）
func (s OrderStatus) Final() bool {
	return s == StatusFilled || s == StatusCanceled || s == StatusRejected
}

// Mode 定义了资金的计价方式
type Mode string

const (
	// ModeLong 使用计价货币(如USDT)资金，先买后卖。
	ModeLong Mode = "LONG"
	// ModeShortInverted 使用基础货币(如BTC)资金，先卖后买。
	ModeShortInverted Mode = "SHORT_INVERTED"
)

// InitialPhase 返回全新启动时的交易方向
func (m Mode) InitialPhase() Phase {
	if m == ModeShortInverted {
		return Sell
	}
	return Buy
}

// ActiveOrder 是唯一一笔未完结的订单。
type ActiveOrder struct {
	OrderID   string      `json:"order_id"`
	Side      Side        `json:"side"`
	Price     float64     `json:"price"`
	Qty       float64     `json:"qty"`
	GridIndex int         `json:"grid_index"`
	Status    OrderStatus `json:"status"`
}

// GridState 是需要持久化的全部状态，也是崩溃恢复的唯一依据。
// 所有变更都返回一个新值，调用者持有的旧值不会被修改。
type GridState struct {
	Phase             Phase              `json:"phase"`
	State             OperationalState   `json:"state"`
	ReferencePrice    float64            `json:"p0_reference_price"`
	ActiveOrder       *ActiveOrder       `json:"active_order"`
	LastFilledIndex   *int               `json:"last_filled_index"`
	RealizedPnL       float64            `json:"realized_pnl"`
	EstimatedBalances map[string]float64 `json:"estimated_balances"`
}

// NewGridState creates the state of a bot that has never traded.
func NewGridState(phase Phase, referencePrice float64, balances map[string]float64) GridState {
	s := GridState{
		Phase:          phase,
		State:          Idle,
		ReferencePrice: referencePrice,
	}
	s.EstimatedBalances = copyBalances(balances)
	return s
}

// Clone returns a deep copy that shares no pointers or maps with s.
func (s GridState) Clone() GridState {
	c := s
	if s.ActiveOrder != nil {
		order := *s.ActiveOrder
		c.ActiveOrder = &order
	}
	if s.LastFilledIndex != nil {
		idx := *s.LastFilledIndex
		c.LastFilledIndex = &idx
	}
	c.EstimatedBalances = copyBalances(s.EstimatedBalances)
	return c
}

// WithActiveOrder records a submitted (or about to be submitted) order.
func (s GridState) WithActiveOrder(order ActiveOrder) GridState {
	c := s.Clone()
	c.ActiveOrder = &order
	c.State = WaitingOrderFill
	return c
}

// WithOrderStatus updates the last known status of the active order.
func (s GridState) WithOrderStatus(status OrderStatus) GridState {
	c := s.Clone()
	if c.ActiveOrder != nil {
		c.ActiveOrder.Status = status
	}
	return c
}

// WithoutActiveOrder reverts to IDLE after a cancel or reject. Phase and last fill are unchanged.
func (s GridState) WithoutActiveOrder() GridState {
	c := s.Clone()
	c.ActiveOrder = nil
	c.State = Idle
	return c
}

// WithBalances replaces the estimated balances.
func (s GridState) WithBalances(balances map[string]float64) GridState {
	c := s.Clone()
	c.EstimatedBalances = copyBalances(balances)
	return c
}

// Validate 检查从磁盘加载的状态是否自洽
func (s GridState) Validate() error {
	if !s.Phase.Valid() {
		return fmt.Errorf("invalid phase %q", s.Phase)
	}
	switch s.State {
	case Idle:
		if s.ActiveOrder != nil {
			return fmt.Errorf("state IDLE but active order %s is present", s.ActiveOrder.OrderID)
		}
	case WaitingOrderFill:
		if s.ActiveOrder == nil {
			return fmt.Errorf("state WAITING_ORDER_FILL without an active order")
		}
	default:
		return fmt.Errorf("invalid operational state %q", s.State)
	}
	if s.ReferencePrice <= 0 {
		return fmt.Errorf("reference price must be > 0, got %v", s.ReferencePrice)
	}
	if s.ActiveOrder != nil {
		if s.ActiveOrder.OrderID == "" {
			return fmt.Errorf("active order has no id")
		}
		if !s.ActiveOrder.Side.Valid() {
			return fmt.Errorf("active order has invalid side %q", s.ActiveOrder.Side)
		}
	}
	return nil
}

// OrderIntent 是决策引擎的输出，未经取整，不会被持久化。
type OrderIntent struct {
	Side      Side
	Price     float64
	Qty       float64
	GridIndex int
}

// SymbolRules 是交易所对交易对的下单约束
type SymbolRules struct {
	TickSize    float64 `json:"tick_size"`
	StepSize    float64 `json:"step_size"`
	MinNotional float64 `json:"min_notional"`
	MinQty      float64 `json:"min_qty"`
}

// Admits 报告取整后的价格和数量是否满足最小数量与最小名义价值
func (r SymbolRules) Admits(price, qty float64) bool {
	if qty <= 0 || price <= 0 {
		return false
	}
	return qty >= r.MinQty && price*qty >= r.MinNotional
}

func copyBalances(in map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
