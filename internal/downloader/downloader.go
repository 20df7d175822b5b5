package downloader

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"spot-grid-bot-go/internal/models"
)

var header = []string{"open_time", "open", "high", "low", "close", "volume", "close_time", "quote_asset_volume", "number_of_trades", "taker_buy_base_asset_volume", "taker_buy_quote_asset_volume"}

// KlineDownloader 用于从币安下载K线数据
type KlineDownloader struct {
	client *binance.Client
	logger *zap.Logger
	pause  time.Duration
}

// NewKlineDownloader 创建一个新的下载器实例，baseURL 为空时使用主网地址。
func NewKlineDownloader(baseURL string, logger *zap.Logger) *KlineDownloader {
	client := binance.NewClient("", "") // 公共接口不需要API Key
	if baseURL != "" {
		client.BaseURL = baseURL
	}
	return &KlineDownloader{
		client: client,
		logger: logger,
		pause:  200 * time.Millisecond,
	}
}

// DownloadKlines 下载指定交易对和时间范围内的1分钟K线数据，并保存到CSV文件。
// 如果文件已存在，则会跳过下载，直接使用缓存。
func (d *KlineDownloader) DownloadKlines(ctx context.Context, symbol, filePath string, startTime, endTime time.Time) error {
	if _, err := os.Stat(filePath); err == nil {
		d.logger.Info("从缓存加载数据", zap.String("path", filePath))
		return nil
	}

	d.logger.Info("开始下载K线数据",
		zap.String("symbol", symbol),
		zap.Time("start", startTime),
		zap.Time("end", endTime))

	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return errors.Wrapf(err, "无法创建目录 %s", filepath.Dir(filePath))
	}

	// 先写临时文件，下载失败时不会留下被当作缓存的半截文件
	tmp := filePath + ".part"
	file, err := os.Create(tmp)
	if err != nil {
		return errors.Wrapf(err, "无法创建文件 %s", tmp)
	}
	defer os.Remove(tmp)

	if err := d.download(ctx, file, symbol, startTime, endTime); err != nil {
		file.Close()
		return err
	}
	if err := file.Close(); err != nil {
		return errors.Wrap(err, "关闭文件失败")
	}
	if err := os.Rename(tmp, filePath); err != nil {
		return errors.Wrap(err, "保存K线文件失败")
	}

	d.logger.Info("成功下载K线数据", zap.String("path", filePath))
	return nil
}

func (d *KlineDownloader) download(ctx context.Context, file *os.File, symbol string, startTime, endTime time.Time) error {
	writer := csv.NewWriter(file)
	if err := writer.Write(header); err != nil {
		return errors.Wrap(err, "写入CSV表头失败")
	}

	for t := startTime; t.Before(endTime); {
		klines, err := d.client.NewKlinesService().
			Symbol(symbol).
			Interval("1m").
			StartTime(t.UnixMilli()).
			EndTime(endTime.UnixMilli()).
			Limit(1000). // 币安单次请求最多1000条
			Do(ctx)
		if err != nil {
			return models.NewError(models.KindExchange, "download klines", err)
		}
		if len(klines) == 0 {
			break
		}

		for _, k := range klines {
			if k.OpenTime >= endTime.UnixMilli() {
				continue
			}
			record := []string{
				strconv.FormatInt(k.OpenTime, 10),
				k.Open,
				k.High,
				k.Low,
				k.Close,
				k.Volume,
				strconv.FormatInt(k.CloseTime, 10),
				k.QuoteAssetVolume,
				strconv.FormatInt(k.TradeNum, 10),
				k.TakerBuyBaseAssetVolume,
				k.TakerBuyQuoteAssetVolume,
			}
			if err := writer.Write(record); err != nil {
				return errors.Wrap(err, "写入CSV记录失败")
			}
		}

		// 更新下一次请求的开始时间
		t = time.UnixMilli(klines[len(klines)-1].CloseTime + 1)
		d.logger.Debug("已下载数据", zap.Time("until", t))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d.pause): // 避免过于频繁的请求
		}
	}

	writer.Flush()
	return errors.Wrap(writer.Error(), "写入CSV失败")
}

// ReadKlines 读取 DownloadKlines 生成的CSV文件。无法解析的行会被跳过并计数。
func ReadKlines(path string) ([]models.Kline, int, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, 0, errors.Wrapf(err, "无法打开历史数据文件 %s", path)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, 0, errors.Wrap(err, "无法读取所有CSV记录")
	}
	if len(records) <= 1 { // 至少需要表头和一行数据
		return nil, 0, fmt.Errorf("历史数据文件 %s 为空或只有表头", path)
	}

	klines := make([]models.Kline, 0, len(records)-1)
	skipped := 0
	for _, record := range records[1:] {
		k, err := parseRecord(record)
		if err != nil {
			skipped++
			continue
		}
		klines = append(klines, k)
	}
	if len(klines) == 0 {
		return nil, skipped, fmt.Errorf("历史数据文件 %s 中没有有效的K线", path)
	}
	return klines, skipped, nil
}

func parseRecord(record []string) (models.Kline, error) {
	if len(record) < 5 {
		return models.Kline{}, fmt.Errorf("expected at least 5 columns, got %d", len(record))
	}
	ts, err := strconv.ParseInt(record[0], 10, 64)
	if err != nil {
		return models.Kline{}, err
	}
	var ohlc [4]float64
	for i := range ohlc {
		if ohlc[i], err = strconv.ParseFloat(record[i+1], 64); err != nil {
			return models.Kline{}, err
		}
	}
	return models.Kline{
		OpenTime: time.UnixMilli(ts),
		Open:     ohlc[0],
		High:     ohlc[1],
		Low:      ohlc[2],
		Close:    ohlc[3],
	}, nil
}

// SymbolFromPath 从数据文件路径中提取交易对名称
// 例如: "data/BNBUSDT-2025-03-15-2025-06-15.csv" -> "BNBUSDT"
func SymbolFromPath(path string) string {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return strings.SplitN(name, "-", 2)[0]
}
