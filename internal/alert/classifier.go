package alert

import (
	"github.com/waypointdigitalstudio-lang/houseops/internal/domain"
)

// Classify 库存状态分类（纯函数，使用变更后的数量与下限）
// quantity <= 0        -> OUT（负数量按 OUT 处理，不视为错误）
// 0 < quantity <= min  -> LOW
// quantity > min       -> OK
func Classify(quantity, minimum int) domain.StockState {
	if quantity <= 0 {
		return domain.StockStateOut
	}
	if quantity <= minimum {
		return domain.StockStateLow
	}
	return domain.StockStateOK
}
