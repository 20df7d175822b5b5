package bot

import (
	"github.com/google/uuid"
	"github.com/jxskiss/base62"
)

const (
	livePrefix   = "grid"
	dryRunPrefix = "dry_run_"
)

// newClientOrderID 生成客户端订单号。base62 编码的 UUID 加前缀不超过币安的 36 字符限制。
func newClientOrderID(prefix string) string {
	id := uuid.New()
	return prefix + base62.EncodeToString(id[:])
}
