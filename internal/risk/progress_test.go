package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"propMonitor/internal/domain"
)

func TestEvaluatePhaseProgress(t *testing.T) {
	tests := []struct {
		name         string
		phase        domain.Phase
		rules        func() domain.PhaseRules
		metrics      domain.Metrics
		wantProgress string
		wantAdvance  bool
		wantNext     domain.Phase
	}{
		{
			name:  "phase 1 target and days met",
			phase: domain.Phase1,
			rules: func() domain.PhaseRules {
				r := baseRules()
				r.MinTradingDays = intPtr(5)
				return r
			},
			metrics:      domain.Metrics{TotalProfit: dec("850"), TradingDays: 5},
			wantProgress: "106.25",
			wantAdvance:  true,
			wantNext:     domain.Phase2,
		},
		{
			name:  "target met but too few days",
			phase: domain.Phase1,
			rules: func() domain.PhaseRules {
				r := baseRules()
				r.MinTradingDays = intPtr(5)
				return r
			},
			metrics:      domain.Metrics{TotalProfit: dec("850"), TradingDays: 4},
			wantProgress: "106.25",
		},
		{
			name:         "half way to target",
			phase:        domain.Phase1,
			rules:        baseRules,
			metrics:      domain.Metrics{TotalProfit: dec("400"), TradingDays: 3},
			wantProgress: "50",
		},
		{
			name:         "losses floor progress at zero",
			phase:        domain.Phase1,
			rules:        baseRules,
			metrics:      domain.Metrics{TotalProfit: dec("-300"), TradingDays: 3},
			wantProgress: "0",
		},
		{
			name:  "phase 2 target met but protection breached",
			phase: domain.Phase2,
			rules: func() domain.PhaseRules {
				r := baseRules()
				r.ConsistencyRules = true
				return r
			},
			metrics:      domain.Metrics{TotalProfit: dec("1000"), BestTradingDay: dec("700"), TradingDays: 3},
			wantProgress: "125",
		},
		{
			name:  "phase 2 advances to funded",
			phase: domain.Phase2,
			rules: func() domain.PhaseRules {
				r := baseRules()
				r.ProfitTargetAmount = decPtr("500")
				return r
			},
			metrics:      domain.Metrics{TotalProfit: dec("500"), TradingDays: 1},
			wantProgress: "100",
			wantAdvance:  true,
			wantNext:     domain.PhaseFunded,
		},
		{
			name:  "zero target advances once days are met",
			phase: domain.Phase1,
			rules: func() domain.PhaseRules {
				r := baseRules()
				r.ProfitTargetAmount = decPtr("0")
				r.MinTradingDays = intPtr(3)
				return r
			},
			metrics:      domain.Metrics{TotalProfit: dec("100"), TradingDays: 3},
			wantProgress: "0",
			wantAdvance:  true,
			wantNext:     domain.Phase2,
		},
		{
			name:  "zero target not reached by a loss",
			phase: domain.Phase1,
			rules: func() domain.PhaseRules {
				r := baseRules()
				r.ProfitTargetAmount = decPtr("0")
				return r
			},
			metrics:      domain.Metrics{TotalProfit: dec("-50"), TradingDays: 3},
			wantProgress: "0",
		},
		{
			name:  "funded without target",
			phase: domain.PhaseFunded,
			rules: func() domain.PhaseRules {
				r := baseRules()
				r.ProfitTarget = nil
				r.ProfitTargetAmount = nil
				return r
			},
			metrics:      domain.Metrics{TotalProfit: dec("2500"), TradingDays: 10},
			wantProgress: "0",
		},
		{
			name:         "funded with target is still terminal",
			phase:        domain.PhaseFunded,
			rules:        baseRules,
			metrics:      domain.Metrics{TotalProfit: dec("900"), TradingDays: 10},
			wantProgress: "112.5",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			progress := EvaluatePhaseProgress(tt.rules(), tt.metrics, testAccount(tt.phase), evalTime)

			assert.True(t, dec(tt.wantProgress).Equal(progress.ProfitProgress), "progress %s", progress.ProfitProgress)
			assert.Equal(t, tt.metrics.TradingDays, progress.DaysTraded)
			assert.Equal(t, tt.wantAdvance, progress.CanAdvance)
			if tt.wantAdvance {
				require.NotNil(t, progress.NextPhase)
				assert.Equal(t, tt.wantNext, *progress.NextPhase)
			} else {
				assert.Nil(t, progress.NextPhase)
			}
		})
	}
}

func TestEvaluatePhaseProgress_WarningsDoNotBlockBeyondDays(t *testing.T) {
	// The only violation is the min-days warning, which is satisfied here, so nothing blocks.
	rules := baseRules()
	rules.MinTradingDays = intPtr(3)
	metrics := domain.Metrics{TotalProfit: dec("800"), TradingDays: 3, DailyProfit: dec("-450")}

	progress := EvaluatePhaseProgress(rules, metrics, testAccount(domain.Phase1), evalTime)

	assert.True(t, progress.CanAdvance)
}

func TestEvaluatePhaseProgress_CriticalBlocksAdvance(t *testing.T) {
	metrics := domain.Metrics{TotalProfit: dec("900"), TradingDays: 6, DailyProfit: dec("-700")}

	progress := EvaluatePhaseProgress(baseRules(), metrics, testAccount(domain.Phase1), evalTime)

	assert.False(t, progress.CanAdvance)
	assert.Nil(t, progress.NextPhase)
}
