package alert_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/waypointdigitalstudio-lang/houseops/internal/alert"
	"github.com/waypointdigitalstudio-lang/houseops/internal/domain"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		quantity int
		minimum  int
		want     domain.StockState
	}{
		{"zero is OUT", 0, 10, domain.StockStateOut},
		{"zero with zero min is OUT", 0, 0, domain.StockStateOut},
		{"negative is OUT", -3, 10, domain.StockStateOut},
		{"at minimum is LOW", 10, 10, domain.StockStateLow},
		{"below minimum is LOW", 1, 10, domain.StockStateLow},
		{"above minimum is OK", 11, 10, domain.StockStateOK},
		{"one with zero min is OK", 1, 0, domain.StockStateOK},
		{"large quantity is OK", 100000, 10, domain.StockStateOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, alert.Classify(tt.quantity, tt.minimum))
		})
	}
}

func TestClassify_Totality(t *testing.T) {
	// 任意整数组合都必须恰好返回三种状态之一
	for q := -5; q <= 20; q++ {
		for m := 0; m <= 15; m++ {
			state := alert.Classify(q, m)
			assert.Contains(t,
				[]domain.StockState{domain.StockStateOK, domain.StockStateLow, domain.StockStateOut},
				state,
			)
			if q == 0 {
				assert.Equal(t, domain.StockStateOut, state)
			}
		}
	}
}
