package alert

import (
	"fmt"

	"github.com/waypointdigitalstudio-lang/houseops/internal/domain"
)

// FeedType 由跃迁后的状态得到 feed 记录类型
func FeedType(next domain.StockState) string {
	switch next {
	case domain.StockStateOut:
		return domain.FeedTypeOut
	case domain.StockStateLow:
		return domain.FeedTypeLow
	default:
		return domain.FeedTypeRestock
	}
}

// Title 报警标题（固定映射表）
func Title(next domain.StockState) string {
	switch next {
	case domain.StockStateOut:
		return "Out of stock"
	case domain.StockStateLow:
		return "Low stock"
	default:
		return "Restocked"
	}
}

// Body 报警正文（固定映射表）
func Body(next domain.StockState, itemName string, qty, min int) string {
	switch next {
	case domain.StockStateOut:
		return fmt.Sprintf("%s is OUT (0 left).", itemName)
	case domain.StockStateLow:
		return fmt.Sprintf("%s is LOW (%d left, min %d).", itemName, qty, min)
	default:
		return fmt.Sprintf("%s was restocked (%d now in stock).", itemName, qty)
	}
}
