package candle_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"pgregory.net/rapid"

	"github.com/tradearena/trading-engine/internal/candle"
	"github.com/tradearena/trading-engine/internal/model"
)

// For any monotone tick sequence: completed candles = distinct intervals - 1,
// each candle's bounds hold (Low <= Open, Close <= High), completed starts
// are strictly increasing, and total delta volume is conserved.
func TestProcessTick_Properties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		interval := time.Minute
		b := candle.NewBuilder(interval)

		n := rapid.IntRange(1, 200).Draw(t, "ticks")
		at := base
		cumVol := int64(0)
		intervals := make(map[time.Time]bool)
		var completed []model.Candle
		totalDelta := int64(0)

		for i := 0; i < n; i++ {
			at = at.Add(time.Duration(rapid.Int64Range(0, 90).Draw(t, "advance")) * time.Second)
			delta := rapid.Int64Range(0, 1000).Draw(t, "vol")
			if i > 0 {
				totalDelta += delta
			}
			cumVol += delta
			price := decimal.NewFromInt(rapid.Int64Range(50, 150).Draw(t, "price"))

			intervals[at.Truncate(interval)] = true
			if done := b.ProcessTick(model.Tick{
				Symbol:           "NIFTY 50",
				Price:            price,
				CumulativeVolume: cumVol,
				Timestamp:        at,
			}); done != nil {
				completed = append(completed, *done)
			}
		}

		if want := len(intervals) - 1; len(completed) != want {
			t.Fatalf("completed %d candles across %d intervals, want %d",
				len(completed), len(intervals), want)
		}

		volumeSum := int64(0)
		for i, c := range completed {
			if c.Low.GreaterThan(c.Open) || c.Low.GreaterThan(c.Close) ||
				c.High.LessThan(c.Open) || c.High.LessThan(c.Close) {
				t.Fatalf("candle bounds violated: %+v", c)
			}
			if i > 0 && !completed[i-1].Start.Before(c.Start) {
				t.Fatalf("candle starts not strictly increasing: %s then %s",
					completed[i-1].Start, c.Start)
			}
			volumeSum += c.Volume
		}
		if cur := b.Current("NIFTY 50"); cur != nil {
			volumeSum += cur.Volume
		}
		if volumeSum != totalDelta {
			t.Fatalf("volume not conserved: candles hold %d, feed delivered %d",
				volumeSum, totalDelta)
		}
	})
}
