package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// DefaultStreamURL 是币安现货行情 WebSocket 的基础地址
const DefaultStreamURL = "wss://stream.binance.com:9443"

// PriceFeed 订阅 <symbol>@aggTrade 成交流并缓存最新成交价。
type PriceFeed struct {
	url        string
	logger     *zap.Logger
	retryDelay time.Duration

	mu      sync.RWMutex
	price   float64
	updated time.Time
}

// NewPriceFeed 创建一个价格流，baseURL 为空时使用 DefaultStreamURL。
func NewPriceFeed(baseURL, symbol string, logger *zap.Logger) *PriceFeed {
	if baseURL == "" {
		baseURL = DefaultStreamURL
	}
	return &PriceFeed{
		url:        fmt.Sprintf("%s/ws/%s@aggTrade", strings.TrimRight(baseURL, "/"), strings.ToLower(symbol)),
		logger:     logger,
		retryDelay: 5 * time.Second,
	}
}

// Last 返回最新价格；如果还没有价格或价格早于 maxAge，ok 为 false。
func (f *PriceFeed) Last(maxAge time.Duration) (price float64, ok bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.updated.IsZero() || time.Since(f.updated) > maxAge {
		return 0, false
	}
	return f.price, true
}

// Run 维持 WebSocket 连接并在断开后重连，直到 ctx 被取消。
func (f *PriceFeed) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			f.logger.Info("价格流已停止")
			return
		}

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.url, nil)
		if err != nil {
			f.logger.Warn("价格流连接失败，稍后重试", zap.Error(err), zap.Duration("retryIn", f.retryDelay))
		} else {
			f.logger.Info("价格流连接成功", zap.String("url", f.url))
			if err := f.handleMessages(ctx, conn); err != nil {
				f.logger.Warn("价格流处理时发生错误", zap.Error(err))
			}
			conn.Close()
		}

		select {
		case <-ctx.Done():
			f.logger.Info("价格流已停止")
			return
		case <-time.After(f.retryDelay):
		}
	}
}

// handleMessages 为一个已建立的连接读取消息并维持心跳，连接断开或 ctx 取消时返回。
func (f *PriceFeed) handleMessages(ctx context.Context, conn *websocket.Conn) error {
	const (
		pongWait   = 60 * time.Second
		pingPeriod = (pongWait * 9) / 10
	)

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	done := make(chan struct{})
	defer close(done)

	// 写操作（Ping 和关闭帧）只在这个 goroutine 中进行
	go func() {
		pingTicker := time.NewTicker(pingPeriod)
		defer pingTicker.Stop()
		for {
			select {
			case <-pingTicker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second)); err != nil {
					f.logger.Warn("发送Ping失败", zap.Error(err))
					return
				}
			case <-ctx.Done():
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(time.Second))
				conn.Close()
				return
			case <-done:
				return
			}
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("读取消息失败: %w", err)
		}

		var trade struct {
			Price json.Number `json:"p"`
		}
		if err := json.Unmarshal(message, &trade); err != nil {
			f.logger.Debug("解析价格信息失败", zap.Error(err))
			continue
		}
		price, err := trade.Price.Float64()
		if err != nil || price <= 0 {
			f.logger.Debug("忽略无效价格", zap.String("raw", string(message)))
			continue
		}

		f.mu.Lock()
		f.price = price
		f.updated = time.Now()
		f.mu.Unlock()
	}
}

// StreamedPrices 优先使用价格流中的最新价格，价格过旧时回退到内层交易所的 REST 接口。
type StreamedPrices struct {
	Exchange
	feed   *PriceFeed
	maxAge time.Duration
}

// NewStreamedPrices 包装一个交易所，让 GetPrice 读取价格流
func NewStreamedPrices(inner Exchange, feed *PriceFeed, maxAge time.Duration) *StreamedPrices {
	return &StreamedPrices{Exchange: inner, feed: feed, maxAge: maxAge}
}

func (s *StreamedPrices) GetPrice(ctx context.Context, symbol string) (float64, error) {
	if price, ok := s.feed.Last(s.maxAge); ok {
		return price, nil
	}
	return s.Exchange.GetPrice(ctx, symbol)
}
